package api

import (
	"net/http"
	"strings"
	"time"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

type CookieSecureMode int

const (
	// CookieSecureAlways marks every auth cookie Secure. The zero value, so
	// an unconfigured policy is safe by default.
	CookieSecureAlways CookieSecureMode = iota
	// CookieSecureAuto marks cookies Secure only when the request arrived
	// over TLS (directly or via a trusted proxy). Intended for local
	// development over plain HTTP.
	CookieSecureAuto
)

// CookiePolicy controls the attributes on the auth cookies.
type CookiePolicy struct {
	SameSite   http.SameSite
	SecureMode CookieSecureMode
}

func DefaultCookiePolicy() CookiePolicy {
	return CookiePolicy{
		SameSite:   http.SameSiteStrictMode,
		SecureMode: CookieSecureAlways,
	}
}

func (p CookiePolicy) secure(r *http.Request) bool {
	if p.SecureMode == CookieSecureAuto {
		return isSecureRequest(r)
	}
	return true
}

func (h *Handler) cookiePolicy() CookiePolicy {
	policy := h.Cookies
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteStrictMode
	}
	return policy
}

func setAuthCookie(w http.ResponseWriter, r *http.Request, name, token string, ttl time.Duration, policy CookiePolicy) {
	if token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl).UTC(),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, r *http.Request, accessToken, refreshToken string) {
	policy := h.cookiePolicy()
	setAuthCookie(w, r, accessCookieName, accessToken, h.Tokens.AccessTTL(), policy)
	setAuthCookie(w, r, refreshCookieName, refreshToken, h.Tokens.RefreshTTL(), policy)
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	policy := h.cookiePolicy()
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0).UTC(),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   policy.secure(r),
			SameSite: policy.SameSite,
		})
	}
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	if r.URL != nil && strings.EqualFold(r.URL.Scheme, "https") {
		return true
	}
	return false
}

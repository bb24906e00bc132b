package api

import (
	"context"
	"net/http"
	"strings"

	"clipstream/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractToken pulls the access token off the request: the accessToken cookie
// wins, then the Authorization bearer header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthenticateRequest verifies the access token on the request and resolves
// the account it belongs to. The detailed failure reason is logged by the
// caller, never surfaced to the client.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, errInvalidSession
	}
	claims, err := h.Tokens.VerifyAccess(token)
	if err != nil {
		return models.User{}, errInvalidSession
	}
	user, ok := h.Store.GetUser(claims.UserID)
	if !ok {
		return models.User{}, errInvalidSession
	}
	// The resolved identity travels on the request context; it never carries
	// credentials. Password checks go back to the store by id.
	user.PasswordHash = ""
	user.RefreshToken = ""
	return user, nil
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "authentication required")
		return models.User{}, false
	}
	return user, true
}

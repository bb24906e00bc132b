// Package api implements the JSON HTTP handlers for the platform.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"clipstream/internal/auth"
	"clipstream/internal/cache"
	"clipstream/internal/media"
	"clipstream/internal/models"
	"clipstream/internal/observability/metrics"
	"clipstream/internal/storage"
)

var errInvalidSession = errors.New("invalid or expired session")

// AssetGateway is the slice of the media gateway the handlers need. The
// production implementation is *media.Gateway; tests substitute a stub.
type AssetGateway interface {
	Upload(ctx context.Context, staging *media.Staging, localPath, kind string) (*models.AssetRef, error)
	UploadMedia(ctx context.Context, staging *media.Staging, localPath, kind string) (media.UploadResult, error)
	Delete(ctx context.Context, publicID, kind string) bool
}

// Handler carries the dependencies shared by every endpoint.
type Handler struct {
	Store      storage.Repository
	Tokens     *auth.TokenManager
	Staging    *media.Staging
	Assets     AssetGateway
	StatsCache *cache.ChannelStatsCache
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
	Cookies    CookiePolicy
}

// NewHandler wires the dependencies, substituting defaults for optional ones.
func NewHandler(h Handler) *Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.Metrics == nil {
		h.Metrics = metrics.Default()
	}
	return &h
}

// Health reports process liveness and storage reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.Error("health check failed", "error", err)
		writeFailure(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userView is the sanitized projection of a user returned to clients. The
// password hash and refresh token never leave the server.
type userView struct {
	ID         string           `json:"id"`
	Username   string           `json:"username"`
	Email      string           `json:"email"`
	FullName   string           `json:"fullName"`
	Avatar     *models.AssetRef `json:"avatar,omitempty"`
	CoverImage *models.AssetRef `json:"coverImage,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

func sanitizeUser(user models.User) userView {
	return userView{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		FullName:   user.FullName,
		Avatar:     user.Avatar,
		CoverImage: user.CoverImage,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

// isStoredID reports whether a path segment looks like a storage id (32 hex
// characters). Malformed ids fail fast with a 400 instead of a lookup miss.
func isStoredID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func requireStoredID(w http.ResponseWriter, id string) bool {
	if !isStoredID(id) {
		writeFailure(w, http.StatusBadRequest, "invalid id")
		return false
	}
	return true
}

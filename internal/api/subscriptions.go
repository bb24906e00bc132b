package api

import (
	"net/http"
	"strings"
)

// ToggleSubscription flips the authenticated user's subscription to the named
// channel: POST /api/v1/subscriptions/{username}.
func (h *Handler) ToggleSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	username := strings.TrimPrefix(r.URL.Path, "/api/v1/subscriptions/")
	if username == "" || strings.Contains(username, "/") {
		writeFailure(w, http.StatusBadRequest, "username is required")
		return
	}
	channel, ok := h.Store.FindUserByUsername(username)
	if !ok {
		writeFailure(w, http.StatusNotFound, "channel not found")
		return
	}

	subscribed, err := h.Store.ToggleSubscription(channel.ID, user.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	// Subscriber counts changed; drop the cached channel stats.
	h.StatsCache.Invalidate(r.Context(), channel.ID)

	writeSuccess(w, http.StatusOK, map[string]any{
		"channelId":  channel.ID,
		"subscribed": subscribed,
	}, "subscription toggled")
}

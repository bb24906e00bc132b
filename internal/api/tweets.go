package api

import (
	"net/http"
	"strings"

	"clipstream/internal/models"
)

// Tweets dispatches /api/v1/tweets: POST creates, GET lists a user's tweets.
func (h *Handler) Tweets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createTweet(w, r)
	case http.MethodGet:
		h.listTweets(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

func (h *Handler) createTweet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tweet, err := h.Store.CreateTweet(user.ID, req.Content)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, tweet, "tweet created")
}

func (h *Handler) listTweets(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAuthenticatedUser(w, r); !ok {
		return
	}
	query := r.URL.Query()
	ownerID := strings.TrimSpace(query.Get("userid"))
	if ownerID == "" || !isStoredID(ownerID) {
		writeFailure(w, http.StatusBadRequest, "userid is required")
		return
	}
	page, limit := parsePageLimit(query)
	tweets, total, err := h.Store.ListTweets(ownerID, page, limit)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if tweets == nil {
		tweets = []models.Tweet{}
	}
	page, limit = normalizedPage(page, limit)
	writeSuccess(w, http.StatusOK, map[string]any{
		"tweets":        tweets,
		"total":         total,
		"page":          page,
		"limit":         limit,
		"hasMoreTweets": page*limit < total,
	}, "tweets")
}

// TweetByID dispatches /api/v1/tweets/{tweetId}: PATCH and DELETE, author
// only.
func (h *Handler) TweetByID(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/tweets/")
	if !requireStoredID(w, id) {
		return
	}
	tweet, ok := h.Store.GetTweet(id)
	if !ok {
		writeFailure(w, http.StatusNotFound, "tweet not found")
		return
	}
	if tweet.OwnerID != user.ID {
		writeFailure(w, http.StatusForbidden, "only the author may modify a tweet")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid request body")
			return
		}
		updated, err := h.Store.UpdateTweet(id, req.Content)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, updated, "tweet updated")
	case http.MethodDelete:
		if err := h.Store.DeleteTweet(id); err != nil {
			writeStorageError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil, "tweet deleted")
	default:
		methodNotAllowed(w, r)
	}
}

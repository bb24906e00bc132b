package api

import (
	"net/http"
	"strings"

	"clipstream/internal/models"
)

// CommentsByVideo dispatches /api/v1/comments/{videoId}: GET lists, POST
// creates.
func (h *Handler) CommentsByVideo(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimPrefix(r.URL.Path, "/api/v1/comments/")
	if strings.Contains(videoID, "/") {
		writeFailure(w, http.StatusNotFound, "not found")
		return
	}
	if !requireStoredID(w, videoID) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.listComments(w, r, videoID)
	case http.MethodPost:
		h.createComment(w, r, videoID)
	default:
		methodNotAllowed(w, r)
	}
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request, videoID string) {
	if _, ok := h.requireAuthenticatedUser(w, r); !ok {
		return
	}
	page, limit := parsePageLimit(r.URL.Query())
	comments, total, err := h.Store.ListComments(videoID, page, limit)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	page, limit = normalizedPage(page, limit)
	writeSuccess(w, http.StatusOK, map[string]any{
		"comments": comments,
		"total":    total,
		"page":     page,
		"limit":    limit,
		"hasMore":  page*limit < total,
	}, "comments")
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request, videoID string) {
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
	comment, err := h.Store.CreateComment(videoID, user.ID, req.Content)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, comment, "comment created")
}

// CommentByID dispatches /api/v1/comments/c/{commentId}: PATCH and DELETE,
// author only.
func (h *Handler) CommentByID(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/comments/c/")
	if !requireStoredID(w, id) {
		return
	}
	comment, ok := h.Store.GetComment(id)
	if !ok {
		writeFailure(w, http.StatusNotFound, "comment not found")
		return
	}
	if comment.OwnerID != user.ID {
		writeFailure(w, http.StatusForbidden, "only the author may modify a comment")
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
		updated, err := h.Store.UpdateComment(id, req.Content)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, updated, "comment updated")
	case http.MethodDelete:
		if err := h.Store.DeleteComment(id); err != nil {
			writeStorageError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil, "comment deleted")
	default:
		methodNotAllowed(w, r)
	}
}

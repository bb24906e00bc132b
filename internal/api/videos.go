package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"clipstream/internal/media"
	"clipstream/internal/models"
	"clipstream/internal/storage"
)

// formatDuration renders whole seconds as HH:MM:SS.
func formatDuration(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// formatMegabytes renders a byte count as megabytes with two decimals.
func formatMegabytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return strconv.FormatFloat(float64(bytes)/(1024*1024), 'f', 2, 64)
}

func parsePageLimit(values url.Values) (int, int) {
	page, _ := strconv.Atoi(values.Get("page"))
	limit, _ := strconv.Atoi(values.Get("limit"))
	return page, limit
}

// Videos dispatches /api/v1/videos: POST publishes, GET lists.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.publishVideo(w, r)
	case http.MethodGet:
		h.listVideos(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

// publishVideo uploads the video file and thumbnail and creates the document.
// Both uploads must succeed; a half-published video is rolled back remotely.
func (h *Handler) publishVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))

	videoPath, err := h.stageFormFile(r, "videoFile")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	thumbnailPath, err := h.stageFormFile(r, "thumbnail")
	if err != nil {
		h.removeStaged(videoPath)
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	if title == "" || videoPath == "" || thumbnailPath == "" {
		h.removeStaged(videoPath, thumbnailPath)
		writeFailure(w, http.StatusBadRequest, "title, videoFile, and thumbnail are required")
		return
	}

	ctx := r.Context()
	h.Metrics.ObserveMediaAttempt("upload_video")
	videoResult, err := h.Assets.UploadMedia(ctx, h.Staging, videoPath, media.KindVideo)
	if err != nil || videoResult.Ref == nil {
		h.removeStaged(thumbnailPath)
		h.Metrics.ObserveMediaFailure("upload_video")
		h.Logger.Error("video upload failed", "user", user.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "video upload failed")
		return
	}

	h.Metrics.ObserveMediaAttempt("upload_image")
	thumbnailRef, err := h.Assets.Upload(ctx, h.Staging, thumbnailPath, media.KindImage)
	if err != nil || thumbnailRef == nil {
		h.Metrics.ObserveMediaFailure("upload_image")
		h.Logger.Error("thumbnail upload failed", "user", user.ID, "error", err)
		h.Assets.Delete(ctx, videoResult.Ref.PublicID, media.KindVideo)
		writeFailure(w, http.StatusInternalServerError, "thumbnail upload failed")
		return
	}

	video, err := h.Store.CreateVideo(storage.CreateVideoParams{
		OwnerID:     user.ID,
		Title:       title,
		Description: description,
		VideoFile:   *videoResult.Ref,
		Thumbnail:   *thumbnailRef,
		Duration:    formatDuration(videoResult.DurationSeconds),
		Size:        formatMegabytes(videoResult.SizeBytes),
	})
	if err != nil {
		h.Assets.Delete(ctx, videoResult.Ref.PublicID, media.KindVideo)
		h.Assets.Delete(ctx, thumbnailRef.PublicID, media.KindImage)
		writeStorageError(w, err)
		return
	}

	h.Metrics.ObserveVideoEvent("publish")
	writeSuccess(w, http.StatusCreated, video, "video published")
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, limit := parsePageLimit(query)
	ownerID := strings.TrimSpace(query.Get("userId"))
	if ownerID != "" && !isStoredID(ownerID) {
		writeFailure(w, http.StatusBadRequest, "invalid userId")
		return
	}

	filter := storage.VideoFilter{
		OwnerID: ownerID,
		Query:   strings.TrimSpace(query.Get("query")),
		SortBy:  strings.TrimSpace(query.Get("sortBy")),
		SortAsc: strings.EqualFold(query.Get("sortType"), "asc"),
		Page:    page,
		Limit:   limit,
		// Owners browsing their own channel see drafts too.
		IncludeUnpublished: ownerID != "" && ownerID == user.ID,
	}

	videos, total, err := h.Store.ListVideos(filter)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}
	page, limit = normalizedPage(page, limit)
	writeSuccess(w, http.StatusOK, map[string]any{
		"videos":  videos,
		"total":   total,
		"page":    page,
		"limit":   limit,
		"hasMore": page*limit < total,
	}, "videos")
}

func normalizedPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = storage.DefaultPageSize
	}
	if limit > storage.MaxPageSize {
		limit = storage.MaxPageSize
	}
	return page, limit
}

// VideoByID dispatches /api/v1/videos/{id}: GET, PATCH, DELETE.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/videos/")
	if strings.Contains(id, "/") {
		writeFailure(w, http.StatusNotFound, "not found")
		return
	}
	if !requireStoredID(w, id) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.getVideo(w, r, id)
	case http.MethodPatch:
		h.updateVideo(w, r, id)
	case http.MethodDelete:
		h.deleteVideo(w, r, id)
	default:
		methodNotAllowed(w, r)
	}
}

// getVideo serves a single video. Unpublished videos are visible only to
// their owner. Views from non-owners count and land in watch history.
func (h *Handler) getVideo(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	video, ok := h.Store.GetVideo(id)
	if !ok {
		writeFailure(w, http.StatusNotFound, "video not found")
		return
	}
	if !video.IsPublished && video.OwnerID != user.ID {
		writeFailure(w, http.StatusNotFound, "video not found")
		return
	}

	if video.OwnerID != user.ID {
		if err := h.Store.IncrementVideoViews(id); err != nil {
			h.Logger.Warn("view count update failed", "video", id, "error", err)
		} else {
			video.Views++
			h.Metrics.ObserveVideoEvent("view")
		}
		if err := h.Store.AppendWatchHistory(user.ID, id); err != nil {
			h.Logger.Warn("watch history update failed", "user", user.ID, "video", id, "error", err)
		}
	}

	writeSuccess(w, http.StatusOK, video, "video")
}

func (h *Handler) updateVideo(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	video, ok := h.Store.GetVideo(id)
	if !ok {
		writeFailure(w, http.StatusNotFound, "video not found")
		return
	}
	if video.OwnerID != user.ID {
		writeFailure(w, http.StatusForbidden, "only the owner may modify a video")
		return
	}

	var update storage.VideoUpdate
	thumbnailPath := ""
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		if values, exists := r.MultipartForm.Value["title"]; exists && len(values) > 0 {
			title := strings.TrimSpace(values[0])
			update.Title = &title
		}
		if values, exists := r.MultipartForm.Value["description"]; exists && len(values) > 0 {
			description := strings.TrimSpace(values[0])
			update.Description = &description
		}
		path, err := h.stageFormFile(r, "thumbnail")
		if err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		thumbnailPath = path
	} else {
		var req struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid request body")
			return
		}
		update.Title = req.Title
		update.Description = req.Description
	}

	if update.Title == nil && update.Description == nil && thumbnailPath == "" {
		writeFailure(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if update.Title != nil && *update.Title == "" {
		h.removeStaged(thumbnailPath)
		writeFailure(w, http.StatusBadRequest, "title cannot be empty")
		return
	}

	ctx := r.Context()
	if thumbnailPath != "" {
		h.Metrics.ObserveMediaAttempt("upload_image")
		ref, err := h.Assets.Upload(ctx, h.Staging, thumbnailPath, media.KindImage)
		if err != nil || ref == nil {
			h.Metrics.ObserveMediaFailure("upload_image")
			h.Logger.Error("thumbnail upload failed", "video", id, "error", err)
			writeFailure(w, http.StatusInternalServerError, "thumbnail upload failed")
			return
		}
		update.Thumbnail = ref
	}

	updated, err := h.Store.UpdateVideo(id, update)
	if err != nil {
		if update.Thumbnail != nil {
			h.Assets.Delete(ctx, update.Thumbnail.PublicID, media.KindImage)
		}
		writeStorageError(w, err)
		return
	}

	if update.Thumbnail != nil && video.Thumbnail.PublicID != "" {
		h.Metrics.ObserveMediaAttempt("delete_image")
		if !h.Assets.Delete(ctx, video.Thumbnail.PublicID, media.KindImage) {
			h.Metrics.ObserveMediaFailure("delete_image")
		}
	}
	writeSuccess(w, http.StatusOK, updated, "video updated")
}

// deleteVideo removes the document (comments cascade) and then best-effort
// deletes the remote assets.
func (h *Handler) deleteVideo(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	video, ok := h.Store.GetVideo(id)
	if !ok {
		writeFailure(w, http.StatusNotFound, "video not found")
		return
	}
	if video.OwnerID != user.ID {
		writeFailure(w, http.StatusForbidden, "only the owner may delete a video")
		return
	}

	if err := h.Store.DeleteVideo(id); err != nil {
		writeStorageError(w, err)
		return
	}

	ctx := r.Context()
	for _, asset := range []struct {
		publicID string
		kind     string
	}{
		{video.VideoFile.PublicID, media.KindVideo},
		{video.Thumbnail.PublicID, media.KindImage},
	} {
		if asset.publicID == "" {
			continue
		}
		h.Metrics.ObserveMediaAttempt("delete_" + asset.kind)
		if !h.Assets.Delete(ctx, asset.publicID, asset.kind) {
			h.Metrics.ObserveMediaFailure("delete_" + asset.kind)
		}
	}

	h.Metrics.ObserveVideoEvent("delete")
	writeSuccess(w, http.StatusOK, nil, "video deleted")
}

// TogglePublish flips a video between draft and published.
func (h *Handler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/videos/toggle/publish/")
	if !requireStoredID(w, id) {
		return
	}
	video, ok := h.Store.GetVideo(id)
	if !ok {
		writeFailure(w, http.StatusNotFound, "video not found")
		return
	}
	if video.OwnerID != user.ID {
		writeFailure(w, http.StatusForbidden, "only the owner may modify a video")
		return
	}

	published := !video.IsPublished
	updated, err := h.Store.UpdateVideo(id, storage.VideoUpdate{IsPublished: &published})
	if err != nil {
		writeStorageError(w, err)
		return
	}
	h.Metrics.ObserveVideoEvent("toggle_publish")
	writeSuccess(w, http.StatusOK, updated, "publish state toggled")
}

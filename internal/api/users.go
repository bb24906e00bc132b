package api

import (
	"net/http"
	"strings"

	"clipstream/internal/cache"
	"clipstream/internal/media"
	"clipstream/internal/models"
	"clipstream/internal/storage"
)

// Register creates an account from a multipart form: fullName, username,
// email, password, a required avatar file, and an optional coverImage file.
// Every staged file is removed on every exit path; a conflict leaves nothing
// behind locally or remotely.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	fullName := strings.TrimSpace(r.FormValue("fullName"))
	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	avatarPath, err := h.stageFormFile(r, "avatar")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	coverPath, err := h.stageFormFile(r, "coverImage")
	if err != nil {
		h.removeStaged(avatarPath)
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	var missing []string
	for field, value := range map[string]string{
		"fullName": fullName,
		"username": username,
		"email":    email,
		"password": password,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		h.removeStaged(avatarPath, coverPath)
		writeFailure(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}
	if avatarPath == "" {
		h.removeStaged(coverPath)
		writeFailure(w, http.StatusBadRequest, "avatar file is required")
		return
	}

	if _, exists := h.Store.FindUserByUsernameOrEmail(username, email); exists {
		h.removeStaged(avatarPath, coverPath)
		h.Metrics.ObserveAuthEvent("register_conflict")
		writeFailure(w, http.StatusConflict, "username or email already in use")
		return
	}

	ctx := r.Context()
	h.Metrics.ObserveMediaAttempt("upload_image")
	avatarRef, err := h.Assets.Upload(ctx, h.Staging, avatarPath, media.KindImage)
	if err != nil || avatarRef == nil {
		h.removeStaged(coverPath)
		h.Metrics.ObserveMediaFailure("upload_image")
		h.Logger.Error("avatar upload failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "avatar upload failed")
		return
	}

	var coverRef *models.AssetRef
	if coverPath != "" {
		h.Metrics.ObserveMediaAttempt("upload_image")
		coverRef, err = h.Assets.Upload(ctx, h.Staging, coverPath, media.KindImage)
		if err != nil {
			h.Metrics.ObserveMediaFailure("upload_image")
			h.Logger.Error("cover image upload failed", "error", err)
			h.Assets.Delete(ctx, avatarRef.PublicID, media.KindImage)
			writeFailure(w, http.StatusInternalServerError, "cover image upload failed")
			return
		}
	}

	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Username:   username,
		Email:      email,
		FullName:   fullName,
		Password:   password,
		Avatar:     avatarRef,
		CoverImage: coverRef,
	})
	if err != nil {
		// A concurrent registration won the race; drop the uploaded assets.
		h.Assets.Delete(ctx, avatarRef.PublicID, media.KindImage)
		if coverRef != nil {
			h.Assets.Delete(ctx, coverRef.PublicID, media.KindImage)
		}
		h.Logger.Warn("user creation failed", "username", username, "error", err)
		writeStorageError(w, err)
		return
	}

	created, ok := h.Store.GetUser(user.ID)
	if !ok {
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.Metrics.ObserveAuthEvent("register_success")
	writeSuccess(w, http.StatusCreated, sanitizeUser(created), "user registered")
}

// Login authenticates by username or email plus password and establishes the
// session cookies. A failed check sets no cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "username or email and password are required")
		return
	}

	user, err := h.Store.AuthenticateUser(identifier, req.Password)
	if err != nil {
		h.Metrics.ObserveAuthEvent("login_failure")
		writeStorageError(w, err)
		return
	}

	pair, err := h.Tokens.Issue(user)
	if err != nil {
		h.Logger.Error("token issue failed", "user", user.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.Store.RotateRefreshToken(user.ID, pair.RefreshToken); err != nil {
		h.Logger.Error("refresh token rotation failed", "user", user.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.setAuthCookies(w, r, pair.AccessToken, pair.RefreshToken)
	h.Metrics.ObserveAuthEvent("login_success")
	writeSuccess(w, http.StatusOK, map[string]any{
		"user":         sanitizeUser(user),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "login successful")
}

// Logout invalidates the stored refresh token and clears both cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.Store.RotateRefreshToken(user.ID, ""); err != nil {
		h.Logger.Error("logout rotation failed", "user", user.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.clearAuthCookies(w, r)
	h.Metrics.ObserveAuthEvent("logout")
	writeSuccess(w, http.StatusOK, nil, "logged out")
}

// RefreshToken exchanges a valid refresh token for a new pair. The presented
// token must be cryptographically valid and bit-equal to the stored one;
// anything else is a bare 401, including replay of a rotated-out token.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	token := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeJSON(r, &req); err == nil {
			token = strings.TrimSpace(req.RefreshToken)
		}
	}
	if token == "" {
		h.Metrics.ObserveAuthEvent("refresh_failure")
		writeFailure(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	claims, err := h.Tokens.VerifyRefresh(token)
	if err != nil {
		h.Metrics.ObserveAuthEvent("refresh_failure")
		writeFailure(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	stored, ok := h.Store.CurrentRefreshToken(claims.UserID)
	if !ok || stored == "" || stored != token {
		h.Metrics.ObserveAuthEvent("refresh_reuse")
		writeFailure(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	user, ok := h.Store.GetUser(claims.UserID)
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	pair, err := h.Tokens.Issue(user)
	if err != nil {
		h.Logger.Error("token issue failed", "user", user.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.Store.RotateRefreshToken(user.ID, pair.RefreshToken); err != nil {
		h.Logger.Error("refresh token rotation failed", "user", user.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.setAuthCookies(w, r, pair.AccessToken, pair.RefreshToken)
	h.Metrics.ObserveAuthEvent("refresh_success")
	writeSuccess(w, http.StatusOK, map[string]string{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "token refreshed")
}

// ChangePassword verifies the old password and installs the new one.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		writeFailure(w, http.StatusBadRequest, "new password must be at least 8 characters")
		return
	}
	if err := h.Store.VerifyUserPassword(user.ID, req.CurrentPassword); err != nil {
		h.Metrics.ObserveAuthEvent("password_change_failure")
		writeStorageError(w, err)
		return
	}
	if _, err := h.Store.SetUserPassword(user.ID, req.NewPassword); err != nil {
		h.Logger.Error("password update failed", "user", user.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.Metrics.ObserveAuthEvent("password_change_success")
	writeSuccess(w, http.StatusOK, nil, "password changed")
}

// CurrentUser returns the sanitized authenticated account.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, sanitizeUser(user), "current user")
}

// UpdateProfile changes fullName and/or email.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req struct {
		FullName *string `json:"fullName"`
		Email    *string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FullName == nil && req.Email == nil {
		writeFailure(w, http.StatusBadRequest, "nothing to update")
		return
	}
	updated, err := h.Store.UpdateUser(user.ID, storage.UserUpdate{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, sanitizeUser(updated), "profile updated")
}

// UpdateAvatar replaces the avatar image.
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceUserImage(w, r, "avatar",
		func(ref *models.AssetRef) storage.UserUpdate { return storage.UserUpdate{Avatar: ref} },
		func(user models.User) *models.AssetRef { return user.Avatar })
}

// UpdateCoverImage replaces the cover image.
func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceUserImage(w, r, "coverImage",
		func(ref *models.AssetRef) storage.UserUpdate { return storage.UserUpdate{CoverImage: ref} },
		func(user models.User) *models.AssetRef { return user.CoverImage })
}

// replaceUserImage uploads the new image first, persists the reference, and
// only then deletes the superseded remote asset. A failed upload can never
// leave the profile without a valid image.
func (h *Handler) replaceUserImage(w http.ResponseWriter, r *http.Request, field string,
	update func(*models.AssetRef) storage.UserUpdate, current func(models.User) *models.AssetRef) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	path, err := h.stageFormFile(r, field)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if path == "" {
		writeFailure(w, http.StatusBadRequest, field+" file is required")
		return
	}

	ctx := r.Context()
	h.Metrics.ObserveMediaAttempt("upload_image")
	ref, err := h.Assets.Upload(ctx, h.Staging, path, media.KindImage)
	if err != nil || ref == nil {
		h.Metrics.ObserveMediaFailure("upload_image")
		h.Logger.Error("image upload failed", "field", field, "user", user.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "image upload failed")
		return
	}

	updated, err := h.Store.UpdateUser(user.ID, update(ref))
	if err != nil {
		h.Assets.Delete(ctx, ref.PublicID, media.KindImage)
		writeStorageError(w, err)
		return
	}

	if old := current(user); old != nil && old.PublicID != "" {
		h.Metrics.ObserveMediaAttempt("delete_image")
		if !h.Assets.Delete(ctx, old.PublicID, media.KindImage) {
			h.Metrics.ObserveMediaFailure("delete_image")
		}
	}
	writeSuccess(w, http.StatusOK, sanitizeUser(updated), field+" updated")
}

type channelProfileView struct {
	userView
	SubscriberCount   int   `json:"subscriberCount"`
	SubscribedToCount int   `json:"subscribedToCount"`
	VideoCount        int   `json:"videoCount"`
	TotalViews        int64 `json:"totalViews"`
	IsSubscribed      bool  `json:"isSubscribed"`
}

// ChannelProfile serves a public channel page by username. Authentication is
// optional; anonymous viewers always see isSubscribed false.
func (h *Handler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	username := strings.TrimPrefix(r.URL.Path, "/api/v1/users/channel-profile/")
	if username == "" || strings.Contains(username, "/") {
		writeFailure(w, http.StatusBadRequest, "username is required")
		return
	}
	channel, ok := h.Store.FindUserByUsername(username)
	if !ok {
		writeFailure(w, http.StatusNotFound, "channel not found")
		return
	}

	stats, err := h.StatsCache.Get(r.Context(), channel.ID, func() (cache.ChannelStats, error) {
		return h.computeChannelStats(channel.ID)
	})
	if err != nil {
		h.Logger.Error("channel stats failed", "channel", channel.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}

	isSubscribed := false
	if viewer, authed := UserFromContext(r.Context()); authed && viewer.ID != channel.ID {
		isSubscribed = h.Store.IsSubscribed(channel.ID, viewer.ID)
	}

	writeSuccess(w, http.StatusOK, channelProfileView{
		userView:          sanitizeUser(channel),
		SubscriberCount:   stats.SubscriberCount,
		SubscribedToCount: stats.SubscribedToCount,
		VideoCount:        stats.VideoCount,
		TotalViews:        stats.TotalViews,
		IsSubscribed:      isSubscribed,
	}, "channel profile")
}

func (h *Handler) computeChannelStats(channelID string) (cache.ChannelStats, error) {
	stats := cache.ChannelStats{
		SubscriberCount:   h.Store.CountSubscribers(channelID),
		SubscribedToCount: h.Store.CountSubscribedTo(channelID),
	}
	for page := 1; ; page++ {
		videos, total, err := h.Store.ListVideos(storage.VideoFilter{
			OwnerID: channelID,
			Page:    page,
			Limit:   storage.MaxPageSize,
		})
		if err != nil {
			return cache.ChannelStats{}, err
		}
		stats.VideoCount = total
		for _, video := range videos {
			stats.TotalViews += video.Views
		}
		if len(videos) < storage.MaxPageSize || page*storage.MaxPageSize >= total {
			break
		}
	}
	return stats, nil
}

// WatchHistory returns the authenticated user's watched videos, most recent
// first.
func (h *Handler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	videos, err := h.Store.WatchHistory(user.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}
	writeSuccess(w, http.StatusOK, videos, "watch history")
}

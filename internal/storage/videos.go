package storage

import (
	"fmt"
	"sort"
	"strings"

	"clipstream/internal/models"
)

// CreateVideo stores a published video document. Both asset references must
// already point at the remote host.
func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, fmt.Errorf("owner %s: %w", params.OwnerID, ErrNotFound)
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, invalidInput("title is required")
	}
	description := strings.TrimSpace(params.Description)
	if description == "" {
		return models.Video{}, invalidInput("description is required")
	}
	if params.VideoFile.URL == "" || params.Thumbnail.URL == "" {
		return models.Video{}, invalidInput("video and thumbnail assets are required")
	}

	id, err := generateID()
	if err != nil {
		return models.Video{}, err
	}

	now := s.now()
	video := models.Video{
		ID:          id,
		OwnerID:     params.OwnerID,
		Title:       title,
		Description: description,
		VideoFile:   params.VideoFile,
		Thumbnail:   params.Thumbnail,
		Duration:    params.Duration,
		Size:        params.Size,
		IsPublished: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, id)
		return models.Video{}, err
	}
	return video, nil
}

// GetVideo returns the video with the given id.
func (s *Storage) GetVideo(id string) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	return video, ok
}

// ListVideos returns one page of videos matching the filter plus the total
// match count for pagination.
func (s *Storage) ListVideos(filter VideoFilter) ([]models.Video, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		if !video.IsPublished && !filter.IncludeUnpublished {
			continue
		}
		if filter.OwnerID != "" && video.OwnerID != filter.OwnerID {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(video.Title), query) &&
			!strings.Contains(strings.ToLower(video.Description), query) {
			continue
		}
		matched = append(matched, video)
	}

	sortVideos(matched, filter.SortBy, filter.SortAsc)

	total := len(matched)
	page, limit := filter.page(), filter.limit()
	start := (page - 1) * limit
	if start >= total {
		return []models.Video{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func sortVideos(videos []models.Video, sortBy string, asc bool) {
	less := func(a, b models.Video) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch strings.TrimSpace(sortBy) {
	case "title":
		less = func(a, b models.Video) bool { return a.Title < b.Title }
	case "views":
		less = func(a, b models.Video) bool { return a.Views < b.Views }
	}
	sort.SliceStable(videos, func(i, j int) bool {
		if asc {
			return less(videos[i], videos[j])
		}
		return less(videos[j], videos[i])
	})
}

// UpdateVideo applies the non-nil fields of update.
func (s *Storage) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}

	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Video{}, invalidInput("title cannot be blank")
		}
		video.Title = trimmed
	}
	if update.Description != nil {
		trimmed := strings.TrimSpace(*update.Description)
		if trimmed == "" {
			return models.Video{}, invalidInput("description cannot be blank")
		}
		video.Description = trimmed
	}
	if update.Thumbnail != nil {
		video.Thumbnail = *update.Thumbnail
	}
	if update.IsPublished != nil {
		video.IsPublished = *update.IsPublished
	}
	video.UpdatedAt = s.now()

	previous := s.data.Videos[id]
	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		s.data.Videos[id] = previous
		return models.Video{}, err
	}
	return video, nil
}

// DeleteVideo removes the video document and its comments. Remote asset
// cleanup is the caller's concern.
func (s *Storage) DeleteVideo(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[id]; !ok {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}

	updated := cloneDataset(s.data)
	delete(updated.Videos, id)
	for commentID, comment := range updated.Comments {
		if comment.VideoID == id {
			delete(updated.Comments, commentID)
		}
	}
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// IncrementVideoViews bumps the view counter by one.
func (s *Storage) IncrementVideoViews(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	previous := s.data.Videos[id]
	video.Views++
	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		s.data.Videos[id] = previous
		return err
	}
	return nil
}

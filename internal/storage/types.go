package storage

import (
	"errors"
	"fmt"

	"clipstream/internal/models"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000

	// MaxTweetLength bounds tweet content.
	MaxTweetLength = 280
	// MaxCommentLength bounds comment content.
	MaxCommentLength = 1000

	// DefaultPageSize applies when a listing request omits the limit.
	DefaultPageSize = 10
	// MaxPageSize caps a single listing page.
	MaxPageSize = 100
)

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a unique field (username, email) is already taken.
	ErrConflict = errors.New("already exists")
	// ErrInvalidCredentials is returned for any failed password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput marks content that failed validation; the API layer
	// maps it to a 400.
	ErrInvalidInput = errors.New("invalid input")
)

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// CreateUserParams captures the attributes set when registering a user.
// Username is normalized to lower case before storage.
type CreateUserParams struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     *models.AssetRef
	CoverImage *models.AssetRef
}

// UserUpdate describes the mutable profile fields of a user. Nil fields are
// left unchanged.
type UserUpdate struct {
	FullName   *string
	Email      *string
	Avatar     *models.AssetRef
	CoverImage *models.AssetRef
}

// CreateVideoParams captures a publish request after both assets have been
// uploaded to the remote host.
type CreateVideoParams struct {
	OwnerID     string
	Title       string
	Description string
	VideoFile   models.AssetRef
	Thumbnail   models.AssetRef
	Duration    string
	Size        string
}

// VideoUpdate describes the mutable fields of a video. Nil fields are left
// unchanged.
type VideoUpdate struct {
	Title       *string
	Description *string
	Thumbnail   *models.AssetRef
	IsPublished *bool
}

// VideoFilter selects and orders a page of videos.
type VideoFilter struct {
	OwnerID string
	// Query matches title or description, case-insensitively.
	Query string
	// SortBy is one of createdAt (default), title, views.
	SortBy  string
	SortAsc bool
	Page    int
	Limit   int
	// IncludeUnpublished lists drafts too; callers restrict it to owners.
	IncludeUnpublished bool
}

func (f VideoFilter) page() int {
	if f.Page < 1 {
		return 1
	}
	return f.Page
}

func (f VideoFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		return MaxPageSize
	}
	return f.Limit
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

package storage

import (
	"context"

	"clipstream/internal/models"
)

// Repository exposes the datastore operations required by the API handlers.
// Two drivers implement it: the JSON document store and the Postgres
// repository.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByUsername(username string) (models.User, bool)
	FindUserByUsernameOrEmail(username, email string) (models.User, bool)
	UpdateUser(id string, update UserUpdate) (models.User, error)
	AuthenticateUser(identifier, password string) (models.User, error)
	VerifyUserPassword(id, password string) error
	SetUserPassword(id, password string) (models.User, error)
	RotateRefreshToken(id, token string) error
	CurrentRefreshToken(id string) (string, bool)
	AppendWatchHistory(userID, videoID string) error
	WatchHistory(userID string) ([]models.Video, error)

	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(id string) (models.Video, bool)
	ListVideos(filter VideoFilter) ([]models.Video, int, error)
	UpdateVideo(id string, update VideoUpdate) (models.Video, error)
	DeleteVideo(id string) error
	IncrementVideoViews(id string) error

	CreateTweet(ownerID, content string) (models.Tweet, error)
	GetTweet(id string) (models.Tweet, bool)
	ListTweets(ownerID string, page, limit int) ([]models.Tweet, int, error)
	UpdateTweet(id, content string) (models.Tweet, error)
	DeleteTweet(id string) error

	CreateComment(videoID, ownerID, content string) (models.Comment, error)
	GetComment(id string) (models.Comment, bool)
	ListComments(videoID string, page, limit int) ([]models.Comment, int, error)
	UpdateComment(id, content string) (models.Comment, error)
	DeleteComment(id string) error

	ToggleSubscription(channelUserID, subscriberID string) (bool, error)
	IsSubscribed(channelUserID, subscriberID string) bool
	CountSubscribers(channelUserID string) int
	CountSubscribedTo(subscriberID string) int
}

var _ Repository = (*Storage)(nil)

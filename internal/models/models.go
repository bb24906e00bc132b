package models

import "time"

// AssetRef points at a media object hosted on the remote asset host. The
// public ID is the host-side identifier required to delete the object when it
// is superseded; the URL is what clients fetch.
type AssetRef struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// User is an account on the platform. PasswordHash and RefreshToken are
// server-side only and must never be serialized into API responses; handlers
// build sanitized views instead.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"passwordHash"`
	Avatar       *AssetRef `json:"avatar,omitempty"`
	CoverImage   *AssetRef `json:"coverImage,omitempty"`
	// RefreshToken holds the single currently-valid refresh token for the
	// account, or the empty string when logged out. Rotation is
	// last-write-wins: a second login invalidates the first session.
	RefreshToken string    `json:"refreshToken"`
	WatchHistory []string  `json:"watchHistory,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Video is a published (or draft) video document.
type Video struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	VideoFile   AssetRef  `json:"videoFile"`
	Thumbnail   AssetRef  `json:"thumbnail"`
	// Duration is formatted HH:MM:SS, Size is megabytes with two decimals,
	// both derived from the asset host's upload response.
	Duration    string    `json:"duration"`
	Size        string    `json:"size"`
	Views       int64     `json:"views"`
	IsPublished bool      `json:"isPublished"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Tweet is a short text post owned by a user.
type Tweet struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Comment is attached to a video.
type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	OwnerID   string    `json:"ownerId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Subscription records that SubscriberID follows the channel owned by
// ChannelUserID.
type Subscription struct {
	ChannelUserID string    `json:"channelUserId"`
	SubscriberID  string    `json:"subscriberId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasWatched reports whether the video already appears in the user's watch
// history.
func (u User) HasWatched(videoID string) bool {
	for _, id := range u.WatchHistory {
		if id == videoID {
			return true
		}
	}
	return false
}

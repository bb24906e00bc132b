package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"clipstream/internal/models"
)

// CreateTweet stores a tweet for the owner.
func (s *Storage) CreateTweet(ownerID, content string) (models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return models.Tweet{}, fmt.Errorf("owner %s: %w", ownerID, ErrNotFound)
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Tweet{}, invalidInput("tweet content is required")
	}
	if len(trimmed) > MaxTweetLength {
		return models.Tweet{}, invalidInput(fmt.Sprintf("tweet content exceeds %d characters", MaxTweetLength))
	}

	id, err := generateID()
	if err != nil {
		return models.Tweet{}, err
	}
	now := s.now()
	tweet := models.Tweet{
		ID:        id,
		OwnerID:   ownerID,
		Content:   trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.data.Tweets[id] = tweet
	if err := s.persist(); err != nil {
		delete(s.data.Tweets, id)
		return models.Tweet{}, err
	}
	return tweet, nil
}

// GetTweet returns the tweet with the given id.
func (s *Storage) GetTweet(id string) (models.Tweet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tweet, ok := s.data.Tweets[id]
	return tweet, ok
}

// ListTweets returns one page of the owner's tweets, newest first, plus the
// total count.
func (s *Storage) ListTweets(ownerID string, page, limit int) ([]models.Tweet, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return nil, 0, fmt.Errorf("user %s: %w", ownerID, ErrNotFound)
	}

	matched := make([]models.Tweet, 0)
	for _, tweet := range s.data.Tweets {
		if tweet.OwnerID == ownerID {
			matched = append(matched, tweet)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[j].CreatedAt.Before(matched[i].CreatedAt)
	})

	total := len(matched)
	page, limit = normalizePage(page, limit)
	start := (page - 1) * limit
	if start >= total {
		return []models.Tweet{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// UpdateTweet replaces the tweet content.
func (s *Storage) UpdateTweet(id, content string) (models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tweet, ok := s.data.Tweets[id]
	if !ok {
		return models.Tweet{}, fmt.Errorf("tweet %s: %w", id, ErrNotFound)
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Tweet{}, invalidInput("tweet content is required")
	}
	if len(trimmed) > MaxTweetLength {
		return models.Tweet{}, invalidInput(fmt.Sprintf("tweet content exceeds %d characters", MaxTweetLength))
	}

	previous := s.data.Tweets[id]
	tweet.Content = trimmed
	tweet.UpdatedAt = s.now()
	s.data.Tweets[id] = tweet
	if err := s.persist(); err != nil {
		s.data.Tweets[id] = previous
		return models.Tweet{}, err
	}
	return tweet, nil
}

// DeleteTweet removes the tweet.
func (s *Storage) DeleteTweet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tweet, ok := s.data.Tweets[id]
	if !ok {
		return fmt.Errorf("tweet %s: %w", id, ErrNotFound)
	}
	delete(s.data.Tweets, id)
	if err := s.persist(); err != nil {
		s.data.Tweets[id] = tweet
		return err
	}
	return nil
}

// CreateComment attaches a comment to a video.
func (s *Storage) CreateComment(videoID, ownerID, content string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return models.Comment{}, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	if _, ok := s.data.Users[ownerID]; !ok {
		return models.Comment{}, fmt.Errorf("owner %s: %w", ownerID, ErrNotFound)
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Comment{}, invalidInput("comment content is required")
	}
	if len(trimmed) > MaxCommentLength {
		return models.Comment{}, invalidInput(fmt.Sprintf("comment content exceeds %d characters", MaxCommentLength))
	}

	id, err := generateID()
	if err != nil {
		return models.Comment{}, err
	}
	now := s.now()
	comment := models.Comment{
		ID:        id,
		VideoID:   videoID,
		OwnerID:   ownerID,
		Content:   trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.data.Comments[id] = comment
	if err := s.persist(); err != nil {
		delete(s.data.Comments, id)
		return models.Comment{}, err
	}
	return comment, nil
}

// GetComment returns the comment with the given id.
func (s *Storage) GetComment(id string) (models.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.data.Comments[id]
	return comment, ok
}

// ListComments returns one page of a video's comments, newest first, plus
// the total count.
func (s *Storage) ListComments(videoID string, page, limit int) ([]models.Comment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return nil, 0, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	matched := make([]models.Comment, 0)
	for _, comment := range s.data.Comments {
		if comment.VideoID == videoID {
			matched = append(matched, comment)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[j].CreatedAt.Before(matched[i].CreatedAt)
	})

	total := len(matched)
	page, limit = normalizePage(page, limit)
	start := (page - 1) * limit
	if start >= total {
		return []models.Comment{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// UpdateComment replaces the comment content.
func (s *Storage) UpdateComment(id, content string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.data.Comments[id]
	if !ok {
		return models.Comment{}, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Comment{}, invalidInput("comment content is required")
	}

	previous := s.data.Comments[id]
	comment.Content = trimmed
	comment.UpdatedAt = s.now()
	s.data.Comments[id] = comment
	if err := s.persist(); err != nil {
		s.data.Comments[id] = previous
		return models.Comment{}, err
	}
	return comment, nil
}

// DeleteComment removes the comment.
func (s *Storage) DeleteComment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.data.Comments[id]
	if !ok {
		return fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	delete(s.data.Comments, id)
	if err := s.persist(); err != nil {
		s.data.Comments[id] = comment
		return err
	}
	return nil
}

// ToggleSubscription flips the subscriber's subscription to the channel and
// reports the resulting state (true when now subscribed).
func (s *Storage) ToggleSubscription(channelUserID, subscriberID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[channelUserID]; !ok {
		return false, fmt.Errorf("channel %s: %w", channelUserID, ErrNotFound)
	}
	if _, ok := s.data.Users[subscriberID]; !ok {
		return false, fmt.Errorf("subscriber %s: %w", subscriberID, ErrNotFound)
	}
	if channelUserID == subscriberID {
		return false, invalidInput("cannot subscribe to your own channel")
	}

	updated := cloneDataset(s.data)
	subscribers := updated.Subscriptions[channelUserID]
	if subscribers == nil {
		subscribers = make(map[string]time.Time)
		updated.Subscriptions[channelUserID] = subscribers
	}
	_, subscribed := subscribers[subscriberID]
	if subscribed {
		delete(subscribers, subscriberID)
	} else {
		subscribers[subscriberID] = s.now()
	}
	if err := s.persistDataset(updated); err != nil {
		return false, err
	}
	s.data = updated
	return !subscribed, nil
}

// IsSubscribed reports whether the subscriber follows the channel.
func (s *Storage) IsSubscribed(channelUserID, subscriberID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subscribers, ok := s.data.Subscriptions[channelUserID]
	if !ok {
		return false
	}
	_, subscribed := subscribers[subscriberID]
	return subscribed
}

// CountSubscribers returns how many users follow the channel.
func (s *Storage) CountSubscribers(channelUserID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Subscriptions[channelUserID])
}

// CountSubscribedTo returns how many channels the user follows.
func (s *Storage) CountSubscribedTo(subscriberID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, subscribers := range s.data.Subscriptions {
		if _, ok := subscribers[subscriberID]; ok {
			count++
		}
	}
	return count
}

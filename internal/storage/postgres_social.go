package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"clipstream/internal/models"
)

func (r *postgresRepository) CreateTweet(ownerID, content string) (models.Tweet, error) {
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
	now := r.clock()

	ctx, cancel := r.opContext()
	defer cancel()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO tweets (id, owner_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, ownerID, trimmed, now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Tweet{}, fmt.Errorf("owner %s: %w", ownerID, ErrNotFound)
		}
		return models.Tweet{}, fmt.Errorf("insert tweet: %w", err)
	}
	return models.Tweet{ID: id, OwnerID: ownerID, Content: trimmed, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *postgresRepository) GetTweet(id string) (models.Tweet, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	var tweet models.Tweet
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, content, created_at, updated_at FROM tweets WHERE id = $1`, id).
		Scan(&tweet.ID, &tweet.OwnerID, &tweet.Content, &tweet.CreatedAt, &tweet.UpdatedAt)
	if err != nil {
		return models.Tweet{}, false
	}
	return tweet, true
}

func (r *postgresRepository) ListTweets(ownerID string, page, limit int) ([]models.Tweet, int, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, ownerID).Scan(&exists); err != nil {
		return nil, 0, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, 0, fmt.Errorf("user %s: %w", ownerID, ErrNotFound)
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tweets WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tweets: %w", err)
	}

	page, limit = normalizePage(page, limit)
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, content, created_at, updated_at FROM tweets
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query tweets: %w", err)
	}
	defer rows.Close()

	tweets := make([]models.Tweet, 0)
	for rows.Next() {
		var tweet models.Tweet
		if err := rows.Scan(&tweet.ID, &tweet.OwnerID, &tweet.Content, &tweet.CreatedAt, &tweet.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan tweet: %w", err)
		}
		tweets = append(tweets, tweet)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tweets: %w", err)
	}
	return tweets, total, nil
}

func (r *postgresRepository) UpdateTweet(id, content string) (models.Tweet, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Tweet{}, invalidInput("tweet content is required")
	}
	if len(trimmed) > MaxTweetLength {
		return models.Tweet{}, invalidInput(fmt.Sprintf("tweet content exceeds %d characters", MaxTweetLength))
	}

	ctx, cancel := r.opContext()
	defer cancel()
	var tweet models.Tweet
	err := r.pool.QueryRow(ctx,
		`UPDATE tweets SET content = $2, updated_at = $3 WHERE id = $1
		RETURNING id, owner_id, content, created_at, updated_at`,
		id, trimmed, r.clock()).
		Scan(&tweet.ID, &tweet.OwnerID, &tweet.Content, &tweet.CreatedAt, &tweet.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Tweet{}, fmt.Errorf("tweet %s: %w", id, ErrNotFound)
	} else if err != nil {
		return models.Tweet{}, fmt.Errorf("update tweet: %w", err)
	}
	return tweet, nil
}

func (r *postgresRepository) DeleteTweet(id string) error {
	ctx, cancel := r.opContext()
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM tweets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tweet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tweet %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) CreateComment(videoID, ownerID, content string) (models.Comment, error) {
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
	now := r.clock()

	ctx, cancel := r.opContext()
	defer cancel()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO comments (id, video_id, owner_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, videoID, ownerID, trimmed, now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Comment{}, fmt.Errorf("video %s or owner %s: %w", videoID, ownerID, ErrNotFound)
		}
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return models.Comment{
		ID:        id,
		VideoID:   videoID,
		OwnerID:   ownerID,
		Content:   trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *postgresRepository) GetComment(id string) (models.Comment, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	var comment models.Comment
	err := r.pool.QueryRow(ctx,
		`SELECT id, video_id, owner_id, content, created_at, updated_at FROM comments WHERE id = $1`, id).
		Scan(&comment.ID, &comment.VideoID, &comment.OwnerID, &comment.Content, &comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		return models.Comment{}, false
	}
	return comment, true
}

func (r *postgresRepository) ListComments(videoID string, page, limit int) ([]models.Comment, int, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)`, videoID).Scan(&exists); err != nil {
		return nil, 0, fmt.Errorf("check video: %w", err)
	}
	if !exists {
		return nil, 0, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM comments WHERE video_id = $1`, videoID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	page, limit = normalizePage(page, limit)
	rows, err := r.pool.Query(ctx,
		`SELECT id, video_id, owner_id, content, created_at, updated_at FROM comments
		WHERE video_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		videoID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0)
	for rows.Next() {
		var comment models.Comment
		if err := rows.Scan(&comment.ID, &comment.VideoID, &comment.OwnerID, &comment.Content, &comment.CreatedAt, &comment.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, total, nil
}

func (r *postgresRepository) UpdateComment(id, content string) (models.Comment, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Comment{}, invalidInput("comment content is required")
	}

	ctx, cancel := r.opContext()
	defer cancel()
	var comment models.Comment
	err := r.pool.QueryRow(ctx,
		`UPDATE comments SET content = $2, updated_at = $3 WHERE id = $1
		RETURNING id, video_id, owner_id, content, created_at, updated_at`,
		id, trimmed, r.clock()).
		Scan(&comment.ID, &comment.VideoID, &comment.OwnerID, &comment.Content, &comment.CreatedAt, &comment.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Comment{}, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	} else if err != nil {
		return models.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return comment, nil
}

func (r *postgresRepository) DeleteComment(id string) error {
	ctx, cancel := r.opContext()
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) ToggleSubscription(channelUserID, subscriberID string) (bool, error) {
	if channelUserID == subscriberID {
		return false, invalidInput("cannot subscribe to your own channel")
	}

	ctx, cancel := r.opContext()
	defer cancel()

	for _, id := range []string{channelUserID, subscriberID} {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return false, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
	}

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE channel_user_id = $1 AND subscriber_id = $2`,
		channelUserID, subscriberID)
	if err != nil {
		return false, fmt.Errorf("toggle subscription: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO subscriptions (channel_user_id, subscriber_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_user_id, subscriber_id) DO NOTHING`,
		channelUserID, subscriberID, r.clock())
	if err != nil {
		return false, fmt.Errorf("toggle subscription: %w", err)
	}
	return true, nil
}

func (r *postgresRepository) IsSubscribed(channelUserID, subscriberID string) bool {
	ctx, cancel := r.opContext()
	defer cancel()
	var subscribed bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE channel_user_id = $1 AND subscriber_id = $2)`,
		channelUserID, subscriberID).Scan(&subscribed)
	return err == nil && subscribed
}

func (r *postgresRepository) CountSubscribers(channelUserID string) int {
	ctx, cancel := r.opContext()
	defer cancel()
	var count int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE channel_user_id = $1`,
		channelUserID).Scan(&count); err != nil {
		return 0
	}
	return count
}

func (r *postgresRepository) CountSubscribedTo(subscriberID string) int {
	ctx, cancel := r.opContext()
	defer cancel()
	var count int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = $1`,
		subscriberID).Scan(&count); err != nil {
		return 0
	}
	return count
}

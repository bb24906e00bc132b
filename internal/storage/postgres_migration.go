package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		avatar_url TEXT,
		avatar_public_id TEXT,
		cover_url TEXT,
		cover_public_id TEXT,
		refresh_token TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		video_url TEXT NOT NULL,
		video_public_id TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL,
		thumbnail_public_id TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL DEFAULT '',
		views BIGINT NOT NULL DEFAULT 0,
		is_published BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS videos_owner_idx ON videos (owner_id)`,
	`CREATE TABLE IF NOT EXISTS tweets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tweets_owner_idx ON tweets (owner_id)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS comments_video_idx ON comments (video_id)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		channel_user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		subscriber_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (channel_user_id, subscriber_id)
	)`,
	`CREATE TABLE IF NOT EXISTS watch_history (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		watched_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, video_id)
	)`,
}

// MigratePostgres applies the schema to the database at dsn. Statements are
// idempotent, so running the migration repeatedly is safe.
func MigratePostgres(ctx context.Context, dsn string) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	defer pool.Close()

	for _, stmt := range migrationStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// ImportSnapshotToPostgres copies a JSON snapshot into the repository. Rows
// that already exist are left untouched, so a partially applied import can be
// rerun.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snapshot *Snapshot) error {
	pg, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("repository is not postgres-backed")
	}
	if snapshot == nil {
		return fmt.Errorf("snapshot required")
	}
	return pg.importSnapshot(ctx, snapshot)
}

func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := importSnapshotUsers(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := importSnapshotVideos(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := importSnapshotTweets(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := importSnapshotComments(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := importSnapshotSubscriptions(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := importSnapshotWatchHistory(ctx, tx, snapshot); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot import: %w", err)
	}
	return nil
}

func sortedKeys[V any](entries map[string]V) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func importSnapshotUsers(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedKeys(snapshot.Users) {
		user := snapshot.Users[id]
		avatarURL, avatarID := assetRefColumns(user.Avatar)
		coverURL, coverID := assetRefColumns(user.CoverImage)
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, username, email, full_name, password_hash,
				avatar_url, avatar_public_id, cover_url, cover_public_id,
				refresh_token, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			id, user.Username, user.Email, user.FullName, user.PasswordHash,
			avatarURL, avatarID, coverURL, coverID,
			user.RefreshToken, normalizeSnapshotTime(user.CreatedAt), normalizeSnapshotTime(user.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert user %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotVideos(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedKeys(snapshot.Videos) {
		video := snapshot.Videos[id]
		_, err := tx.Exec(ctx,
			`INSERT INTO videos (id, owner_id, title, description,
				video_url, video_public_id, thumbnail_url, thumbnail_public_id,
				duration, size, views, is_published, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING`,
			id, video.OwnerID, video.Title, video.Description,
			video.VideoFile.URL, video.VideoFile.PublicID,
			video.Thumbnail.URL, video.Thumbnail.PublicID,
			video.Duration, video.Size, video.Views, video.IsPublished,
			normalizeSnapshotTime(video.CreatedAt), normalizeSnapshotTime(video.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert video %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotTweets(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedKeys(snapshot.Tweets) {
		tweet := snapshot.Tweets[id]
		_, err := tx.Exec(ctx,
			`INSERT INTO tweets (id, owner_id, content, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			id, tweet.OwnerID, tweet.Content,
			normalizeSnapshotTime(tweet.CreatedAt), normalizeSnapshotTime(tweet.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert tweet %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotComments(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, id := range sortedKeys(snapshot.Comments) {
		comment := snapshot.Comments[id]
		_, err := tx.Exec(ctx,
			`INSERT INTO comments (id, video_id, owner_id, content, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			id, comment.VideoID, comment.OwnerID, comment.Content,
			normalizeSnapshotTime(comment.CreatedAt), normalizeSnapshotTime(comment.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert comment %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotSubscriptions(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, channelID := range sortedKeys(snapshot.Subscriptions) {
		subscribers := snapshot.Subscriptions[channelID]
		for _, subscriberID := range sortedKeys(subscribers) {
			_, err := tx.Exec(ctx,
				`INSERT INTO subscriptions (channel_user_id, subscriber_id, created_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (channel_user_id, subscriber_id) DO NOTHING`,
				channelID, subscriberID, normalizeSnapshotTime(subscribers[subscriberID]))
			if err != nil {
				return fmt.Errorf("insert subscription %s/%s: %w", channelID, subscriberID, err)
			}
		}
	}
	return nil
}

func importSnapshotWatchHistory(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, userID := range sortedKeys(snapshot.Users) {
		user := snapshot.Users[userID]
		// Recency order is reconstructed from list position; the most recent
		// entry sits at the head of the slice.
		base := normalizeSnapshotTime(user.UpdatedAt)
		for i, videoID := range user.WatchHistory {
			if _, ok := snapshot.Videos[videoID]; !ok {
				continue
			}
			watchedAt := base.Add(-time.Duration(i) * time.Second)
			_, err := tx.Exec(ctx,
				`INSERT INTO watch_history (user_id, video_id, watched_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (user_id, video_id) DO NOTHING`,
				userID, videoID, watchedAt)
			if err != nil {
				return fmt.Errorf("insert watch history %s/%s: %w", userID, videoID, err)
			}
		}
	}
	return nil
}

func normalizeSnapshotTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"clipstream/internal/models"
)

const videoColumns = `id, owner_id, title, description,
	video_url, video_public_id, thumbnail_url, thumbnail_public_id,
	duration, size, views, is_published, created_at, updated_at`

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	err := row.Scan(
		&video.ID, &video.OwnerID, &video.Title, &video.Description,
		&video.VideoFile.URL, &video.VideoFile.PublicID,
		&video.Thumbnail.URL, &video.Thumbnail.PublicID,
		&video.Duration, &video.Size, &video.Views, &video.IsPublished,
		&video.CreatedAt, &video.UpdatedAt,
	)
	return video, err
}

func collectVideos(rows pgx.Rows) ([]models.Video, error) {
	videos := make([]models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

func (r *postgresRepository) CreateVideo(params CreateVideoParams) (models.Video, error) {
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
	now := r.clock()
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

	ctx, cancel := r.opContext()
	defer cancel()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO videos (id, owner_id, title, description,
			video_url, video_public_id, thumbnail_url, thumbnail_public_id,
			duration, size, views, is_published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, TRUE, $11, $12)`,
		id, params.OwnerID, title, description,
		params.VideoFile.URL, params.VideoFile.PublicID,
		params.Thumbnail.URL, params.Thumbnail.PublicID,
		params.Duration, params.Size, now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Video{}, fmt.Errorf("owner %s: %w", params.OwnerID, ErrNotFound)
		}
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) GetVideo(id string) (models.Video, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	video, err := scanVideo(r.pool.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		return models.Video{}, false
	}
	return video, true
}

func (r *postgresRepository) ListVideos(filter VideoFilter) ([]models.Video, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if !filter.IncludeUnpublished {
		conditions = append(conditions, "is_published")
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		args = append(args, "%"+strings.ToLower(query)+"%")
		conditions = append(conditions,
			fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	orderColumn := "created_at"
	switch strings.TrimSpace(filter.SortBy) {
	case "title":
		orderColumn = "title"
	case "views":
		orderColumn = "views"
	}
	direction := "DESC"
	if filter.SortAsc {
		direction = "ASC"
	}

	ctx, cancel := r.opContext()
	defer cancel()

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM videos"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	page, limit := filter.page(), filter.limit()
	args = append(args, limit, (page-1)*limit)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM videos%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
			videoColumns, where, orderColumn, direction, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()
	videos, err := collectVideos(rows)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

func (r *postgresRepository) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Video{}, fmt.Errorf("begin update video: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	video, err := scanVideo(tx.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	} else if err != nil {
		return models.Video{}, fmt.Errorf("load video: %w", err)
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
	video.UpdatedAt = r.clock()

	_, err = tx.Exec(ctx,
		`UPDATE videos SET title = $2, description = $3,
			thumbnail_url = $4, thumbnail_public_id = $5,
			is_published = $6, updated_at = $7
		WHERE id = $1`,
		id, video.Title, video.Description,
		video.Thumbnail.URL, video.Thumbnail.PublicID,
		video.IsPublished, video.UpdatedAt)
	if err != nil {
		return models.Video{}, fmt.Errorf("update video: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Video{}, fmt.Errorf("commit update video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) DeleteVideo(id string) error {
	ctx, cancel := r.opContext()
	defer cancel()

	// Comments and watch history rows cascade via foreign keys.
	tag, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) IncrementVideoViews(id string) error {
	ctx, cancel := r.opContext()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		`UPDATE videos SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

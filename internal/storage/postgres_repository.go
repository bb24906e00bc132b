package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipstream/internal/models"
)

type postgresRepository struct {
	pool  *pgxpool.Pool
	cfg   PostgresConfig
	clock func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository. The caller must
// ensure database migrations have been applied prior to invoking this
// constructor.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	return &postgresRepository{pool: pool, cfg: cfg, clock: cfg.Clock}, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) opContext() (context.Context, context.CancelFunc) {
	timeout := r.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not initialised")
	}
	return r.pool.Ping(ctx)
}

const userColumns = `id, username, email, full_name, password_hash,
	avatar_url, avatar_public_id, cover_url, cover_public_id,
	refresh_token, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user          models.User
		avatarURL     *string
		avatarID      *string
		coverURL      *string
		coverID       *string
	)
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &user.PasswordHash,
		&avatarURL, &avatarID, &coverURL, &coverID,
		&user.RefreshToken, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	user.Avatar = assetRefFromColumns(avatarURL, avatarID)
	user.CoverImage = assetRefFromColumns(coverURL, coverID)
	return user, nil
}

func assetRefFromColumns(url, publicID *string) *models.AssetRef {
	if url == nil || *url == "" {
		return nil
	}
	ref := models.AssetRef{URL: *url}
	if publicID != nil {
		ref.PublicID = *publicID
	}
	return &ref
}

func assetRefColumns(ref *models.AssetRef) (*string, *string) {
	if ref == nil {
		return nil, nil
	}
	url, publicID := ref.URL, ref.PublicID
	return &url, &publicID
}

func (r *postgresRepository) loadWatchHistory(ctx context.Context, user *models.User) error {
	rows, err := r.pool.Query(ctx,
		`SELECT video_id FROM watch_history WHERE user_id = $1 ORDER BY watched_at DESC`,
		user.ID)
	if err != nil {
		return fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var videoID string
		if err := rows.Scan(&videoID); err != nil {
			return fmt.Errorf("scan watch history: %w", err)
		}
		user.WatchHistory = append(user.WatchHistory, videoID)
	}
	return rows.Err()
}

func (r *postgresRepository) getUser(ctx context.Context, query string, args ...any) (models.User, bool) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return models.User{}, false
	}
	if err := r.loadWatchHistory(ctx, &user); err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	username := NormalizeUsername(params.Username)
	if username == "" {
		return models.User{}, invalidInput("username is required")
	}
	email := normalizeEmail(params.Email)
	if email == "" {
		return models.User{}, invalidInput("email is required")
	}
	fullName := strings.TrimSpace(params.FullName)
	if fullName == "" {
		return models.User{}, invalidInput("fullName is required")
	}
	if params.Password == "" {
		return models.User{}, invalidInput("password is required")
	}

	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	now := r.clock()
	user := models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hashed,
		Avatar:       cloneAssetRef(params.Avatar),
		CoverImage:   cloneAssetRef(params.CoverImage),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	avatarURL, avatarID := assetRefColumns(user.Avatar)
	coverURL, coverID := assetRefColumns(user.CoverImage)

	ctx, cancel := r.opContext()
	defer cancel()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, full_name, password_hash,
			avatar_url, avatar_public_id, cover_url, cover_public_id,
			refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', $10, $11)`,
		id, username, email, fullName, hashed,
		avatarURL, avatarID, coverURL, coverID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user with that username or email %w", ErrConflict)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *postgresRepository) FindUserByUsername(username string) (models.User, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`,
		NormalizeUsername(username))
}

func (r *postgresRepository) FindUserByUsernameOrEmail(username, email string) (models.User, bool) {
	normalizedUsername := NormalizeUsername(username)
	normalizedEmail := normalizeEmail(email)
	if normalizedUsername == "" && normalizedEmail == "" {
		return models.User{}, false
	}
	ctx, cancel := r.opContext()
	defer cancel()
	return r.getUser(ctx,
		`SELECT `+userColumns+` FROM users
		WHERE (username = $1 AND $1 <> '') OR (email = $2 AND $2 <> '')
		LIMIT 1`,
		normalizedUsername, normalizedEmail)
}

func (r *postgresRepository) UpdateUser(id string, update UserUpdate) (models.User, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, fmt.Errorf("begin update user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	} else if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}

	if update.FullName != nil {
		trimmed := strings.TrimSpace(*update.FullName)
		if trimmed == "" {
			return models.User{}, invalidInput("fullName cannot be blank")
		}
		user.FullName = trimmed
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" {
			return models.User{}, invalidInput("email cannot be blank")
		}
		user.Email = email
	}
	if update.Avatar != nil {
		user.Avatar = cloneAssetRef(update.Avatar)
	}
	if update.CoverImage != nil {
		user.CoverImage = cloneAssetRef(update.CoverImage)
	}
	user.UpdatedAt = r.clock()

	avatarURL, avatarID := assetRefColumns(user.Avatar)
	coverURL, coverID := assetRefColumns(user.CoverImage)
	_, err = tx.Exec(ctx,
		`UPDATE users SET email = $2, full_name = $3,
			avatar_url = $4, avatar_public_id = $5,
			cover_url = $6, cover_public_id = $7, updated_at = $8
		WHERE id = $1`,
		id, user.Email, user.FullName, avatarURL, avatarID, coverURL, coverID, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("email %w", ErrConflict)
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit update user: %w", err)
	}
	if err := r.loadWatchHistory(ctx, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *postgresRepository) AuthenticateUser(identifier, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	user, ok := r.FindUserByUsernameOrEmail(identifier, identifier)
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (r *postgresRepository) VerifyUserPassword(id, password string) error {
	user, ok := r.GetUser(id)
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (r *postgresRepository) SetUserPassword(id, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, invalidInput("password must be at least 8 characters")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := r.opContext()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hashed, r.clock())
	if err != nil {
		return models.User{}, fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	user, ok := r.GetUser(id)
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return user, nil
}

func (r *postgresRepository) RotateRefreshToken(id, token string) error {
	ctx, cancel := r.opContext()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token = $2, updated_at = $3 WHERE id = $1`,
		id, token, r.clock())
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) CurrentRefreshToken(id string) (string, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	var token string
	err := r.pool.QueryRow(ctx, `SELECT refresh_token FROM users WHERE id = $1`, id).Scan(&token)
	if err != nil {
		return "", false
	}
	return token, true
}

func (r *postgresRepository) AppendWatchHistory(userID, videoID string) error {
	ctx, cancel := r.opContext()
	defer cancel()

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)`, videoID).Scan(&exists); err != nil {
		return fmt.Errorf("check video: %w", err)
	}
	if !exists {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO watch_history (user_id, video_id, watched_at)
		SELECT id, $2, $3 FROM users WHERE id = $1
		ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = EXCLUDED.watched_at`,
		userID, videoID, r.clock())
	if err != nil {
		return fmt.Errorf("append watch history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) WatchHistory(userID string) ([]models.Video, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+videoColumns+` FROM videos v
		JOIN watch_history h ON h.video_id = v.id
		WHERE h.user_id = $1
		ORDER BY h.watched_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()
	return collectVideos(rows)
}

var _ Repository = (*postgresRepository)(nil)

// Command server starts the Clipstream API HTTP service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"clipstream/internal/api"
	"clipstream/internal/auth"
	"clipstream/internal/cache"
	"clipstream/internal/media"
	"clipstream/internal/observability/logging"
	"clipstream/internal/observability/metrics"
	"clipstream/internal/server"
	"clipstream/internal/serverutil"
	"clipstream/internal/storage"
)

func main() {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to the JSON datastore file")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	migrate := flag.Bool("migrate", false, "run Postgres schema migration before serving")
	accessSecret := flag.String("access-token-secret", "", "HMAC secret for access tokens")
	refreshSecret := flag.String("refresh-token-secret", "", "HMAC secret for refresh tokens")
	accessTTL := flag.Duration("access-token-ttl", 0, "access token lifetime")
	refreshTTL := flag.Duration("refresh-token-ttl", 0, "refresh token lifetime")
	stagingDir := flag.String("staging-dir", "", "directory for staged uploads")
	stagingMaxAge := flag.Duration("staging-max-age", 0, "age after which orphaned staged files are swept")
	stagingSweepInterval := flag.Duration("staging-sweep-interval", 0, "interval between staging sweeps")
	assetHostURL := flag.String("asset-host-url", "", "base URL of the remote asset host")
	assetHostKey := flag.String("asset-host-key", "", "API key for the remote asset host")
	assetTimeout := flag.Duration("asset-timeout", 0, "per-request timeout for asset host calls")
	redisAddr := flag.String("redis-addr", "", "Redis address for the channel stats cache")
	redisUsername := flag.String("redis-username", "", "Redis username for the channel stats cache")
	redisPassword := flag.String("redis-password", "", "Redis password for the channel stats cache")
	redisDB := flag.Int("redis-db", 0, "Redis database for the channel stats cache")
	statsTTL := flag.Duration("stats-cache-ttl", 0, "TTL for cached channel stats")
	corsOrigins := flag.String("cors-origins", "", "comma separated browser origins allowed to call the API")
	devInsecureCookies := flag.Bool("dev-insecure-cookies", false, "mark auth cookies Secure only on TLS requests (local development over plain HTTP)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CLIPSTREAM_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CLIPSTREAM_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	store, storeCloser, err := openStore(storeSettings{
		Driver:         firstNonEmpty(*storageDriver, os.Getenv("CLIPSTREAM_STORAGE_DRIVER")),
		DataPath:       firstNonEmpty(*dataPath, os.Getenv("CLIPSTREAM_DATA"), "data/clipstream.json"),
		DSN:            firstNonEmpty(*postgresDSN, os.Getenv("CLIPSTREAM_POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		MaxConns:       resolveInt(*postgresMaxConns, "CLIPSTREAM_POSTGRES_MAX_CONNS"),
		MinConns:       resolveInt(*postgresMinConns, "CLIPSTREAM_POSTGRES_MIN_CONNS"),
		MaxLifetime:    resolveDuration(*postgresMaxConnLifetime, "CLIPSTREAM_POSTGRES_MAX_CONN_LIFETIME"),
		MaxIdle:        resolveDuration(*postgresMaxConnIdle, "CLIPSTREAM_POSTGRES_MAX_CONN_IDLE"),
		HealthInterval: resolveDuration(*postgresHealthInterval, "CLIPSTREAM_POSTGRES_HEALTH_INTERVAL"),
		AcquireTimeout: resolveDuration(*postgresAcquireTimeout, "CLIPSTREAM_POSTGRES_ACQUIRE_TIMEOUT"),
		AppName:        firstNonEmpty(*postgresAppName, os.Getenv("CLIPSTREAM_POSTGRES_APP_NAME")),
		Migrate:        resolveBool(*migrate, "CLIPSTREAM_POSTGRES_MIGRATE"),
	}, logger)
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenManager(auth.TokenManagerConfig{
		AccessSecret:  firstNonEmpty(*accessSecret, os.Getenv("CLIPSTREAM_ACCESS_TOKEN_SECRET")),
		RefreshSecret: firstNonEmpty(*refreshSecret, os.Getenv("CLIPSTREAM_REFRESH_TOKEN_SECRET")),
		AccessTTL:     resolveDuration(*accessTTL, "CLIPSTREAM_ACCESS_TOKEN_TTL"),
		RefreshTTL:    resolveDuration(*refreshTTL, "CLIPSTREAM_REFRESH_TOKEN_TTL"),
	})
	if err != nil {
		logger.Error("failed to configure token manager", "error", err)
		os.Exit(1)
	}

	staging, err := media.NewStaging(
		firstNonEmpty(*stagingDir, os.Getenv("CLIPSTREAM_STAGING_DIR"), "data/staging"),
		logging.WithComponent(logger, "staging"))
	if err != nil {
		logger.Error("failed to prepare staging directory", "error", err)
		os.Exit(1)
	}

	gateway, err := media.NewGateway(media.GatewayConfig{
		BaseURL:        firstNonEmpty(*assetHostURL, os.Getenv("CLIPSTREAM_ASSET_HOST_URL")),
		APIKey:         firstNonEmpty(*assetHostKey, os.Getenv("CLIPSTREAM_ASSET_HOST_KEY")),
		RequestTimeout: resolveDuration(*assetTimeout, "CLIPSTREAM_ASSET_TIMEOUT"),
	}, logging.WithComponent(logger, "assets"))
	if err != nil {
		logger.Error("failed to configure asset gateway", "error", err)
		os.Exit(1)
	}
	if !gateway.Enabled() {
		logger.Warn("asset host not configured; media uploads will fail")
	}

	statsCache := cache.New(cache.Config{
		Addr:     firstNonEmpty(*redisAddr, os.Getenv("CLIPSTREAM_REDIS_ADDR")),
		Username: firstNonEmpty(*redisUsername, os.Getenv("CLIPSTREAM_REDIS_USERNAME")),
		Password: firstNonEmpty(*redisPassword, os.Getenv("CLIPSTREAM_REDIS_PASSWORD")),
		DB:       resolveInt(*redisDB, "CLIPSTREAM_REDIS_DB"),
		TTL:      resolveDuration(*statsTTL, "CLIPSTREAM_STATS_CACHE_TTL"),
		Logger:   logging.WithComponent(logger, "stats-cache"),
	})

	cookiePolicy := api.DefaultCookiePolicy()
	if resolveBool(*devInsecureCookies, "CLIPSTREAM_DEV_INSECURE_COOKIES") {
		cookiePolicy.SecureMode = api.CookieSecureAuto
		logger.Warn("auth cookies not forced Secure; do not use this mode in production")
	}

	handler := api.NewHandler(api.Handler{
		Store:      store,
		Tokens:     tokens,
		Staging:    staging,
		Assets:     gateway,
		StatsCache: statsCache,
		Metrics:    recorder,
		Logger:     logger,
		Cookies:    cookiePolicy,
	})

	listenAddr := firstNonEmpty(*addr, os.Getenv("CLIPSTREAM_ADDR"), ":8080")
	srv, err := server.New(handler, server.Config{
		Addr:    listenAddr,
		CORS:    server.CORSConfig{AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("CLIPSTREAM_CORS_ORIGINS")))},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepInterval := resolveDuration(*stagingSweepInterval, "CLIPSTREAM_STAGING_SWEEP_INTERVAL")
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	maxAge := resolveDuration(*stagingMaxAge, "CLIPSTREAM_STAGING_MAX_AGE")
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	go runStagingSweeper(ctx, staging, recorder, logging.WithComponent(logger, "staging-sweeper"), sweepInterval, maxAge)

	logger.Info("Clipstream API listening", "addr", listenAddr)
	logger.Info("metrics endpoint available", "path", "/metrics")

	err = serverutil.Run(ctx, serverutil.Config{
		Server: srv.HTTPServer(),
		TLS: serverutil.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("CLIPSTREAM_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("CLIPSTREAM_TLS_KEY")),
		},
	})
	if err != nil {
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if storeCloser != nil {
		if err := storeCloser(shutdownCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}
	if err := statsCache.Close(); err != nil {
		logger.Warn("failed to close stats cache", "error", err)
	}
	logger.Info("server stopped")
}

type storeSettings struct {
	Driver         string
	DataPath       string
	DSN            string
	MaxConns       int
	MinConns       int
	MaxLifetime    time.Duration
	MaxIdle        time.Duration
	HealthInterval time.Duration
	AcquireTimeout time.Duration
	AppName        string
	Migrate        bool
}

func openStore(settings storeSettings, logger *slog.Logger) (storage.Repository, func(context.Context) error, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.Driver))
	if driver == "" {
		if settings.DSN != "" {
			driver = "postgres"
		} else {
			driver = "json"
		}
	}

	switch driver {
	case "json":
		store, err := storage.NewStorage(settings.DataPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using JSON datastore", "path", settings.DataPath)
		return store, nil, nil
	case "postgres":
		if settings.Migrate {
			migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := storage.MigratePostgres(migrateCtx, settings.DSN); err != nil {
				return nil, nil, err
			}
			logger.Info("postgres schema migration complete")
		}
		var options []storage.Option
		if settings.MaxConns > 0 || settings.MinConns > 0 {
			options = append(options, storage.WithPostgresPoolLimits(int32(settings.MaxConns), int32(settings.MinConns)))
		}
		if settings.MaxLifetime > 0 || settings.MaxIdle > 0 || settings.HealthInterval > 0 {
			options = append(options, storage.WithPostgresPoolDurations(settings.MaxLifetime, settings.MaxIdle, settings.HealthInterval))
		}
		if settings.AcquireTimeout > 0 {
			options = append(options, storage.WithPostgresAcquireTimeout(settings.AcquireTimeout))
		}
		if settings.AppName != "" {
			options = append(options, storage.WithPostgresApplicationName(settings.AppName))
		}
		store, err := storage.NewPostgresRepository(settings.DSN, options...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using Postgres datastore")
		closer := func(ctx context.Context) error {
			if c, ok := store.(interface{ Close(context.Context) error }); ok {
				return c.Close(ctx)
			}
			return nil
		}
		return store, closer, nil
	default:
		return nil, nil, &unsupportedDriverError{driver: driver}
	}
}

type unsupportedDriverError struct{ driver string }

func (e *unsupportedDriverError) Error() string {
	return "unsupported storage driver " + strconv.Quote(e.driver)
}

// runStagingSweeper periodically deletes staged files left behind by crashed
// requests.
func runStagingSweeper(ctx context.Context, staging *media.Staging, recorder *metrics.Recorder, logger *slog.Logger, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := staging.SweepOlderThan(maxAge)
			if err != nil {
				logger.Warn("staging sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				recorder.ObserveStagedFilesSwept(removed)
				logger.Info("swept staged files", "removed", removed)
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}

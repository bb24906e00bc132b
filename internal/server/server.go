// Package server assembles the HTTP mux, middleware chain, and runtime
// configuration around the API handlers.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clipstream/internal/api"
	"clipstream/internal/observability/logging"
	"clipstream/internal/observability/metrics"
)

// Config controls the assembled server.
type Config struct {
	Addr    string
	CORS    CORSConfig
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Server owns the configured http.Server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the route table and middleware chain around the handlers.
func New(handler *api.Handler, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())

	mux.HandleFunc("/api/v1/users/register", handler.Register)
	mux.HandleFunc("/api/v1/users/login", handler.Login)
	mux.HandleFunc("/api/v1/users/logout", handler.Logout)
	mux.HandleFunc("/api/v1/users/refresh-token", handler.RefreshToken)
	mux.HandleFunc("/api/v1/users/change-password", handler.ChangePassword)
	mux.HandleFunc("/api/v1/users/current-user", handler.CurrentUser)
	mux.HandleFunc("/api/v1/users/update-profile", handler.UpdateProfile)
	mux.HandleFunc("/api/v1/users/update-avatar", handler.UpdateAvatar)
	mux.HandleFunc("/api/v1/users/update-cover-image", handler.UpdateCoverImage)
	mux.HandleFunc("/api/v1/users/channel-profile/", handler.ChannelProfile)
	mux.HandleFunc("/api/v1/users/watch-history", handler.WatchHistory)

	mux.HandleFunc("/api/v1/videos", handler.Videos)
	mux.HandleFunc("/api/v1/videos/", handler.VideoByID)
	mux.HandleFunc("/api/v1/videos/toggle/publish/", handler.TogglePublish)

	mux.HandleFunc("/api/v1/tweets", handler.Tweets)
	mux.HandleFunc("/api/v1/tweets/", handler.TweetByID)

	mux.HandleFunc("/api/v1/comments/", handler.CommentsByVideo)
	mux.HandleFunc("/api/v1/comments/c/", handler.CommentByID)

	mux.HandleFunc("/api/v1/subscriptions/", handler.ToggleSubscription)

	corsPolicy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}

	chain := http.Handler(mux)
	chain = authMiddleware(handler, chain)
	chain = metrics.HTTPMiddleware(recorder, chain)
	chain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(chain)
	chain = corsMiddleware(corsPolicy, logger, chain)
	chain = requestIDMiddleware(chain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: httpServer, logger: logger}, nil
}

// HTTPServer exposes the underlying http.Server for serverutil.Run.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// openPaths never require authentication.
var openPaths = map[string]struct{}{
	"/api/v1/users/register":      {},
	"/api/v1/users/login":         {},
	"/api/v1/users/refresh-token": {},
}

// authMiddleware gates /api/v1/ routes behind a valid access token. The
// channel profile page is readable anonymously but still resolves the viewer
// when a token is presented.
func authMiddleware(handler *api.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if !strings.HasPrefix(path, "/api/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		if _, open := openPaths[path]; open {
			next.ServeHTTP(w, r)
			return
		}

		optionalAuth := r.Method == http.MethodGet &&
			strings.HasPrefix(path, "/api/v1/users/channel-profile/")

		if api.ExtractToken(r) == "" {
			if optionalAuth {
				next.ServeHTTP(w, r)
				return
			}
			api.WriteFailure(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, err := handler.AuthenticateRequest(r)
		if err != nil {
			if optionalAuth {
				next.ServeHTTP(w, r)
				return
			}
			api.WriteFailure(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next.ServeHTTP(w, r.WithContext(api.ContextWithUser(r.Context(), user)))
	})
}

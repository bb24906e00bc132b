package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipstream/internal/models"
)

const (
	defaultRequestTimeout = 2 * time.Minute
	defaultMaxAttempts    = 3
	defaultRetryBackoff   = 500 * time.Millisecond
)

// Asset kinds accepted by the remote host.
const (
	KindImage = "image"
	KindVideo = "video"
)

// ErrGatewayDisabled is returned when an upload is attempted without a
// configured asset host.
var ErrGatewayDisabled = errors.New("asset host not configured")

// GatewayConfig describes the remote asset host.
type GatewayConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
}

// Gateway uploads staged files to the remote asset host and deletes remote
// assets by public id. Transient failures are retried with a fixed backoff.
type Gateway struct {
	cfg        GatewayConfig
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(time.Duration)
}

// NewGateway builds a gateway. An empty base URL yields a disabled gateway
// whose Upload calls fail; local development without an asset host can still
// run every endpoint that does not touch media.
func NewGateway(cfg GatewayConfig, logger *slog.Logger) (*Gateway, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	gateway := &Gateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
		sleep:      time.Sleep,
	}
	trimmed := strings.TrimSpace(cfg.BaseURL)
	if trimmed == "" {
		return gateway, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid asset host url %q", cfg.BaseURL)
	}
	gateway.baseURL = parsed
	return gateway, nil
}

// Enabled reports whether an asset host is configured.
func (g *Gateway) Enabled() bool { return g != nil && g.baseURL != nil }

type uploadResponse struct {
	URL       string  `json:"url"`
	SecureURL string  `json:"secure_url"`
	PublicID  string  `json:"public_id"`
	Duration  float64 `json:"duration"`
	Bytes     int64   `json:"bytes"`
}

// UploadResult is the asset host's description of a stored object. Duration
// and size are only populated for video uploads.
type UploadResult struct {
	Ref             *models.AssetRef
	DurationSeconds float64
	SizeBytes       int64
}

// Upload sends the staged file at localPath to the asset host and returns the
// remote reference. An empty localPath is not an error; it returns a nil
// reference so optional uploads fall through cleanly. The staged file is
// always removed before Upload returns, success or not.
func (g *Gateway) Upload(ctx context.Context, staging *Staging, localPath, kind string) (*models.AssetRef, error) {
	result, err := g.UploadMedia(ctx, staging, localPath, kind)
	if err != nil {
		return nil, err
	}
	return result.Ref, nil
}

// UploadMedia is Upload with the host-side metadata retained; video publishes
// need the reported duration and byte size.
func (g *Gateway) UploadMedia(ctx context.Context, staging *Staging, localPath, kind string) (UploadResult, error) {
	if localPath == "" {
		return UploadResult{}, nil
	}
	defer func() {
		if staging != nil {
			staging.Remove(localPath)
		}
	}()
	if !g.Enabled() {
		return UploadResult{}, ErrGatewayDisabled
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return UploadResult{}, ctx.Err()
			default:
			}
			g.sleep(g.cfg.RetryBackoff)
		}
		result, retryable, err := g.uploadOnce(ctx, localPath, kind)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		g.logger.Warn("asset upload attempt failed",
			"kind", kind, "attempt", attempt, "error", err)
	}
	return UploadResult{}, fmt.Errorf("upload %s asset: %w", kind, lastErr)
}

func (g *Gateway) uploadOnce(ctx context.Context, localPath, kind string) (UploadResult, bool, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return UploadResult{}, false, fmt.Errorf("open staged file: %w", err)
	}
	defer file.Close()

	pipeReader, pipeWriter := io.Pipe()
	writer := multipart.NewWriter(pipeWriter)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(localPath))
		if err != nil {
			_ = pipeWriter.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			_ = pipeWriter.CloseWithError(err)
			return
		}
		if err := writer.Close(); err != nil {
			_ = pipeWriter.CloseWithError(err)
			return
		}
		_ = pipeWriter.Close()
	}()

	target := g.baseURL.JoinPath("upload", kind)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), pipeReader)
	if err != nil {
		return UploadResult{}, false, fmt.Errorf("create upload request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if g.cfg.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	response, err := g.httpClient.Do(request)
	if err != nil {
		return UploadResult{}, true, fmt.Errorf("upload request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<20))
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 500 {
		return UploadResult{}, true, fmt.Errorf("upload request: unexpected status %d", response.StatusCode)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return UploadResult{}, false, fmt.Errorf("upload request: unexpected status %d", response.StatusCode)
	}

	var payload uploadResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, 1<<20)).Decode(&payload); err != nil {
		return UploadResult{}, false, fmt.Errorf("decode upload response: %w", err)
	}
	remoteURL := payload.SecureURL
	if remoteURL == "" {
		remoteURL = payload.URL
	}
	if remoteURL == "" {
		return UploadResult{}, false, fmt.Errorf("upload response missing url")
	}
	return UploadResult{
		Ref:             &models.AssetRef{URL: remoteURL, PublicID: payload.PublicID},
		DurationSeconds: payload.Duration,
		SizeBytes:       payload.Bytes,
	}, false, nil
}

// Delete removes a remote asset by public id. Deletion is best effort: every
// failure is logged and reported as false, never as an error, so callers can
// keep going after the primary operation has already succeeded.
func (g *Gateway) Delete(ctx context.Context, publicID, kind string) bool {
	if publicID == "" {
		return true
	}
	if !g.Enabled() {
		g.logger.Warn("skipping remote asset delete, asset host not configured", "publicId", publicID)
		return false
	}

	target := g.baseURL.JoinPath("assets")
	query := target.Query()
	query.Set("public_id", publicID)
	query.Set("kind", kind)
	target.RawQuery = query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.String(), nil)
	if err != nil {
		g.logger.Warn("failed to build asset delete request", "publicId", publicID, "error", err)
		return false
	}
	if g.cfg.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	response, err := g.httpClient.Do(request)
	if err != nil {
		g.logger.Warn("remote asset delete failed", "publicId", publicID, "error", err)
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<20))
		_ = response.Body.Close()
	}()
	if response.StatusCode == http.StatusNotFound {
		// Already gone; treat as success so orphan cleanup converges.
		return true
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		g.logger.Warn("remote asset delete failed",
			"publicId", publicID, "status", response.StatusCode)
		return false
	}
	return true
}

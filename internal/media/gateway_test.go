package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()
	gateway, err := NewGateway(GatewayConfig{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	gateway.sleep = func(time.Duration) {}
	return gateway
}

func stageFile(t *testing.T, staging *Staging, content string) string {
	t.Helper()
	path, err := staging.Save(strings.NewReader(content), "asset.png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func TestUploadSendsMultipartAndParsesResponse(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			file.Close()
		}
		json.NewEncoder(w).Encode(map[string]string{
			"secure_url": "https://cdn.example.com/assets/abc123.png",
			"public_id":  "assets/abc123",
		})
	}))
	defer server.Close()

	staging := newTestStaging(t)
	gateway := newTestGateway(t, server.URL)
	path := stageFile(t, staging, "image-bytes")

	ref, err := gateway.Upload(context.Background(), staging, path, KindImage)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref == nil || ref.URL != "https://cdn.example.com/assets/abc123.png" || ref.PublicID != "assets/abc123" {
		t.Fatalf("unexpected asset ref: %+v", ref)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/upload/image" {
		t.Fatalf("expected kind in upload path, got %q", gotPath)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected staged file removed after successful upload")
	}
}

func TestUploadMediaParsesVideoMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"secure_url": "https://cdn.example.com/v/clip.mp4",
			"public_id":  "v/clip",
			"duration":   95.4,
			"bytes":      13002342,
		})
	}))
	defer server.Close()

	staging := newTestStaging(t)
	gateway := newTestGateway(t, server.URL)
	path := stageFile(t, staging, "video-bytes")

	result, err := gateway.UploadMedia(context.Background(), staging, path, KindVideo)
	if err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
	if result.Ref == nil || result.Ref.PublicID != "v/clip" {
		t.Fatalf("unexpected ref: %+v", result.Ref)
	}
	if result.DurationSeconds != 95.4 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds)
	}
	if result.SizeBytes != 13002342 {
		t.Fatalf("unexpected size %v", result.SizeBytes)
	}
}

func TestUploadEmptyPathIsNoop(t *testing.T) {
	gateway := newTestGateway(t, "https://assets.example.com")
	ref, err := gateway.Upload(context.Background(), nil, "", KindImage)
	if err != nil {
		t.Fatalf("Upload empty path: %v", err)
	}
	if ref != nil {
		t.Fatalf("expected nil ref for empty path, got %+v", ref)
	}
}

func TestUploadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"url":       "https://cdn.example.com/v/1.mp4",
			"public_id": "v/1",
		})
	}))
	defer server.Close()

	staging := newTestStaging(t)
	gateway := newTestGateway(t, server.URL)
	path := stageFile(t, staging, "video-bytes")

	ref, err := gateway.Upload(context.Background(), staging, path, KindVideo)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref.PublicID != "v/1" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestUploadDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	staging := newTestStaging(t)
	gateway := newTestGateway(t, server.URL)
	path := stageFile(t, staging, "bad")

	if _, err := gateway.Upload(context.Background(), staging, path, KindImage); err == nil {
		t.Fatal("expected upload error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt for 4xx, got %d", calls.Load())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected staged file removed even after failed upload")
	}
}

func TestUploadDisabledGateway(t *testing.T) {
	staging := newTestStaging(t)
	gateway := newTestGateway(t, "")
	path := stageFile(t, staging, "bytes")

	if _, err := gateway.Upload(context.Background(), staging, path, KindImage); !errors.Is(err, ErrGatewayDisabled) {
		t.Fatalf("expected ErrGatewayDisabled, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected staged file removed even when gateway disabled")
	}
}

func TestDeleteBestEffort(t *testing.T) {
	var gotQuery string
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(status)
	}))
	defer server.Close()

	gateway := newTestGateway(t, server.URL)

	if !gateway.Delete(context.Background(), "assets/abc123", KindImage) {
		t.Fatal("expected delete to succeed")
	}
	if !strings.Contains(gotQuery, "public_id=assets%2Fabc123") {
		t.Fatalf("expected public id in query, got %q", gotQuery)
	}

	status = http.StatusInternalServerError
	if gateway.Delete(context.Background(), "assets/abc123", KindImage) {
		t.Fatal("expected delete failure to report false")
	}

	// A missing asset counts as deleted.
	status = http.StatusNotFound
	if !gateway.Delete(context.Background(), "assets/abc123", KindImage) {
		t.Fatal("expected 404 to count as success")
	}

	if !gateway.Delete(context.Background(), "", KindImage) {
		t.Fatal("expected empty public id to be a no-op success")
	}
}

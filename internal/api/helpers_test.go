package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"clipstream/internal/auth"
	"clipstream/internal/media"
	"clipstream/internal/models"
	"clipstream/internal/observability/logging"
	"clipstream/internal/observability/metrics"
	"clipstream/internal/storage"
)

// stubGateway stands in for the remote asset host. It honors the real
// gateway's contract of removing the staged file on every upload attempt.
type stubGateway struct {
	mu      sync.Mutex
	seq     int
	uploads []string
	deletes []string
	// failUploads makes every upload fail after removing the staged file.
	failUploads bool
}

func (g *stubGateway) UploadMedia(_ context.Context, staging *media.Staging, localPath, kind string) (media.UploadResult, error) {
	if localPath == "" {
		return media.UploadResult{}, nil
	}
	if staging != nil {
		staging.Remove(localPath)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failUploads {
		return media.UploadResult{}, fmt.Errorf("stub upload failure")
	}
	g.seq++
	id := fmt.Sprintf("%s/%d", kind, g.seq)
	g.uploads = append(g.uploads, id)
	return media.UploadResult{
		Ref:             &models.AssetRef{URL: "https://cdn.test/" + id, PublicID: id},
		DurationSeconds: 95,
		SizeBytes:       5 << 20,
	}, nil
}

func (g *stubGateway) Upload(ctx context.Context, staging *media.Staging, localPath, kind string) (*models.AssetRef, error) {
	result, err := g.UploadMedia(ctx, staging, localPath, kind)
	if err != nil {
		return nil, err
	}
	return result.Ref, nil
}

func (g *stubGateway) Delete(_ context.Context, publicID, kind string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes = append(g.deletes, publicID)
	return true
}

// liveAssets returns the public ids uploaded but not yet deleted.
func (g *stubGateway) liveAssets() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	deleted := make(map[string]bool, len(g.deletes))
	for _, id := range g.deletes {
		deleted[id] = true
	}
	var live []string
	for _, id := range g.uploads {
		if !deleted[id] {
			live = append(live, id)
		}
	}
	return live
}

func (g *stubGateway) deletedAssets() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deletes...)
}

func (g *stubGateway) uploadCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.uploads)
}

type testEnv struct {
	handler *Handler
	store   *storage.Storage
	gateway *stubGateway
	staging *media.Staging
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	tokens, err := auth.NewTokenManager(auth.TokenManagerConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	logger := logging.New(logging.Config{Level: "error", Writer: io.Discard})
	staging, err := media.NewStaging(filepath.Join(dir, "staging"), logger)
	if err != nil {
		t.Fatalf("NewStaging: %v", err)
	}
	gateway := &stubGateway{}
	handler := NewHandler(Handler{
		Store:   store,
		Tokens:  tokens,
		Staging: staging,
		Assets:  gateway,
		Metrics: metrics.New(),
		Logger:  logger,
	})
	return &testEnv{handler: handler, store: store, gateway: gateway, staging: staging}
}

func (env *testEnv) stagedFileCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(env.staging.Dir())
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	return len(entries)
}

func (env *testEnv) createUser(t *testing.T, username string) models.User {
	t.Helper()
	user, err := env.store.CreateUser(storage.CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: "Test " + username,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return user
}

func (env *testEnv) publishVideo(t *testing.T, owner models.User, title string) models.Video {
	t.Helper()
	video, err := env.store.CreateVideo(storage.CreateVideoParams{
		OwnerID:     owner.ID,
		Title:       title,
		Description: "about " + title,
		VideoFile:   models.AssetRef{URL: "https://cdn.test/v/" + title, PublicID: "v/" + title},
		Thumbnail:   models.AssetRef{URL: "https://cdn.test/t/" + title, PublicID: "t/" + title},
		Duration:    "00:01:35",
		Size:        "5.00",
	})
	if err != nil {
		t.Fatalf("CreateVideo(%s): %v", title, err)
	}
	return video
}

// asUser attaches the user to the request context the way the auth
// middleware does.
func asUser(r *http.Request, user models.User) *http.Request {
	return r.WithContext(ContextWithUser(r.Context(), user))
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart form request from text fields and file
// parts (field name to file name; contents are arbitrary bytes).
func multipartRequest(t *testing.T, method, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, value := range fields {
		if err := writer.WriteField(field, value); err != nil {
			t.Fatalf("write field %s: %v", field, err)
		}
	}
	for field, filename := range files {
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create file part %s: %v", field, err)
		}
		if _, err := part.Write([]byte("file-bytes-" + field)); err != nil {
			t.Fatalf("write file part %s: %v", field, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return envelope
}

func envelopeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	envelope := decodeEnvelope(t, rec)
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %v", envelope["data"])
	}
	return data
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

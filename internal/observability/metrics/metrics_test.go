package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func httptestHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
}

func TestObserveRequestNormalizesPath(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/api/v1/videos/0123456789abcdef0123456789abcdef", 200, 25*time.Millisecond)
	recorder.ObserveRequest("GET", "/api/v1/videos/fedcba9876543210fedcba9876543210", 200, 5*time.Millisecond)

	var out strings.Builder
	recorder.Write(&out)
	body := out.String()

	if !strings.Contains(body, `clipstream_http_requests_total{method="GET",path="/api/v1/videos/:id",status="200"} 2`) {
		t.Fatalf("expected normalized path with combined count, got:\n%s", body)
	}
}

func TestAuthAndMediaCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveAuthEvent("login_success")
	recorder.ObserveAuthEvent("login_success")
	recorder.ObserveAuthEvent("LOGIN_FAILURE ")
	recorder.ObserveMediaAttempt("upload_image")
	recorder.ObserveMediaFailure("upload_image")
	recorder.ObserveMediaAttempt("delete_video")

	auth := recorder.AuthEventCounts()
	if auth["login_success"] != 2 || auth["login_failure"] != 1 {
		t.Fatalf("unexpected auth counts: %v", auth)
	}

	attempts, failures := recorder.MediaCounts()
	if attempts["upload_image"] != 1 || attempts["delete_video"] != 1 {
		t.Fatalf("unexpected media attempts: %v", attempts)
	}
	if failures["upload_image"] != 1 {
		t.Fatalf("unexpected media failures: %v", failures)
	}

	var out strings.Builder
	recorder.Write(&out)
	body := out.String()
	for _, want := range []string{
		`clipstream_auth_events_total{event="login_failure"} 1`,
		`clipstream_media_attempts_total{operation="upload_image"} 1`,
		`clipstream_media_failures_total{operation="upload_image"} 1`,
		// Operations with attempts but no failures still render a zero series.
		`clipstream_media_failures_total{operation="delete_video"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output:\n%s", want, body)
		}
	}
}

func TestHandlerServesPrometheusText(t *testing.T) {
	recorder := New()
	recorder.ObserveVideoEvent("publish")
	recorder.ObserveStagedFilesSwept(3)

	request := httptest.NewRequest("GET", "/metrics", nil)
	response := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(response, request)

	if got := response.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	body := response.Body.String()
	if !strings.Contains(body, `clipstream_video_events_total{event="publish"} 1`) {
		t.Fatalf("expected video event series, got:\n%s", body)
	}
	if !strings.Contains(body, "clipstream_staged_files_swept_total 3") {
		t.Fatalf("expected swept counter, got:\n%s", body)
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, httptestHandler(404))

	request := httptest.NewRequest("GET", "/missing", nil)
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)

	var out strings.Builder
	recorder.Write(&out)
	if !strings.Contains(out.String(), `status="404"`) {
		t.Fatalf("expected 404 series, got:\n%s", out.String())
	}
}

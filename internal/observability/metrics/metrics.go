package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters for HTTP requests, authentication
// events, media gateway traffic, and video lifecycle events. Writers
// coordinate through a RWMutex; the /metrics handler renders Prometheus text
// exposition output.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	authEvents      map[string]uint64
	mediaAttempts   map[string]uint64
	mediaFailures   map[string]uint64
	videoEvents     map[string]uint64
	stagedSwept     uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		authEvents:      make(map[string]uint64),
		mediaAttempts:   make(map[string]uint64),
		mediaFailures:   make(map[string]uint64),
		videoEvents:     make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by the package-level helpers.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveAuthEvent records an authentication lifecycle event such as
// "login_success", "login_failure", "refresh", or "logout".
func (r *Recorder) ObserveAuthEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.authEvents[name]++
	r.mu.Unlock()
}

// ObserveMediaAttempt records a media gateway operation attempt keyed by
// operation name (e.g., "upload_image", "delete_video").
func (r *Recorder) ObserveMediaAttempt(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.mediaAttempts[op]++
	r.mu.Unlock()
}

// ObserveMediaFailure records a failed media gateway operation. The caller
// should also record the attempt separately.
func (r *Recorder) ObserveMediaFailure(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.mediaFailures[op]++
	r.mu.Unlock()
}

// ObserveVideoEvent records a video lifecycle event such as "publish",
// "view", or "delete".
func (r *Recorder) ObserveVideoEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.videoEvents[name]++
	r.mu.Unlock()
}

// ObserveStagedFilesSwept adds to the total of staged files removed by the
// background sweeper.
func (r *Recorder) ObserveStagedFilesSwept(count int) {
	if count <= 0 {
		return
	}
	r.mu.Lock()
	r.stagedSwept += uint64(count)
	r.mu.Unlock()
}

// AuthEventCounts returns a copy of the auth event counters for tests.
func (r *Recorder) AuthEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.authEvents))
	for k, v := range r.authEvents {
		counts[k] = v
	}
	return counts
}

// MediaCounts returns copies of media attempt and failure counters for tests.
func (r *Recorder) MediaCounts() (attempts map[string]uint64, failures map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempts = make(map[string]uint64, len(r.mediaAttempts))
	for k, v := range r.mediaAttempts {
		attempts[k] = v
	}
	failures = make(map[string]uint64, len(r.mediaFailures))
	for k, v := range r.mediaFailures {
		failures[k] = v
	}
	return attempts, failures
}

// Reset clears all counters on the recorder. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authEvents = make(map[string]uint64)
	r.mediaAttempts = make(map[string]uint64)
	r.mediaFailures = make(map[string]uint64)
	r.videoEvents = make(map[string]uint64)
	r.stagedSwept = 0
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets for stable output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	authEvents := sortedKeys(r.authEvents)
	mediaOperations := r.sortedMediaOperations()
	videoEvents := sortedKeys(r.videoEvents)

	fmt.Fprintln(w, "# HELP clipstream_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE clipstream_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "clipstream_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP clipstream_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE clipstream_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "clipstream_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP clipstream_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE clipstream_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "clipstream_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP clipstream_auth_events_total Authentication events by type")
	fmt.Fprintln(w, "# TYPE clipstream_auth_events_total counter")
	for _, event := range authEvents {
		fmt.Fprintf(w, "clipstream_auth_events_total{event=\"%s\"} %d\n", event, r.authEvents[event])
	}

	fmt.Fprintln(w, "# HELP clipstream_media_attempts_total Media gateway operations attempted by action")
	fmt.Fprintln(w, "# TYPE clipstream_media_attempts_total counter")
	for _, op := range mediaOperations {
		fmt.Fprintf(w, "clipstream_media_attempts_total{operation=\"%s\"} %d\n", op, r.mediaAttempts[op])
	}

	fmt.Fprintln(w, "# HELP clipstream_media_failures_total Media gateway operation failures by action")
	fmt.Fprintln(w, "# TYPE clipstream_media_failures_total counter")
	for _, op := range mediaOperations {
		fmt.Fprintf(w, "clipstream_media_failures_total{operation=\"%s\"} %d\n", op, r.mediaFailures[op])
	}

	fmt.Fprintln(w, "# HELP clipstream_video_events_total Video lifecycle events by type")
	fmt.Fprintln(w, "# TYPE clipstream_video_events_total counter")
	for _, event := range videoEvents {
		fmt.Fprintf(w, "clipstream_video_events_total{event=\"%s\"} %d\n", event, r.videoEvents[event])
	}

	fmt.Fprintln(w, "# HELP clipstream_staged_files_swept_total Staged upload files removed by the background sweeper")
	fmt.Fprintln(w, "# TYPE clipstream_staged_files_swept_total counter")
	fmt.Fprintf(w, "clipstream_staged_files_swept_total %d\n", r.stagedSwept)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedMediaOperations() []string {
	seen := make(map[string]struct{}, len(r.mediaAttempts)+len(r.mediaFailures))
	for op := range r.mediaAttempts {
		seen[op] = struct{}{}
	}
	for op := range r.mediaFailures {
		seen[op] = struct{}{}
	}
	ops := make([]string, 0, len(seen))
	for op := range seen {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func sortedKeys(counts map[string]uint64) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveAuthEvent records an auth event on the default recorder.
func ObserveAuthEvent(event string) {
	defaultRecorder.ObserveAuthEvent(event)
}

// ObserveMediaAttempt records a media attempt on the default recorder.
func ObserveMediaAttempt(operation string) {
	defaultRecorder.ObserveMediaAttempt(operation)
}

// ObserveMediaFailure records a media failure on the default recorder.
func ObserveMediaFailure(operation string) {
	defaultRecorder.ObserveMediaFailure(operation)
}

// ObserveVideoEvent records a video event on the default recorder.
func ObserveVideoEvent(event string) {
	defaultRecorder.ObserveVideoEvent(event)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}

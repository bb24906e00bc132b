// Package media moves uploaded files through a local staging directory and on
// to the remote asset host.
package media

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Staging writes incoming multipart uploads to a scratch directory on local
// disk. Every staged file is temporary: the gateway deletes it after the
// remote upload attempt, and the sweeper collects anything left behind by
// crashed requests.
type Staging struct {
	dir    string
	logger *slog.Logger
}

// NewStaging ensures the staging directory exists.
func NewStaging(dir string, logger *slog.Logger) (*Staging, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("staging directory required")
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Staging{dir: trimmed, logger: logger}, nil
}

// Dir returns the staging directory path.
func (s *Staging) Dir() string { return s.dir }

// Save copies an uploaded stream into the staging directory and returns the
// staged file's path. The original filename only contributes its extension;
// the name itself is never trusted.
func (s *Staging) Save(src io.Reader, originalName string) (string, error) {
	name := uuid.NewString()
	if ext := sanitizeExtension(originalName); ext != "" {
		name += ext
	}
	path := filepath.Join(s.dir, name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return path, nil
}

// Remove deletes a staged file. Failures are logged, not returned; a leaked
// staged file is cleaned up by the sweeper later.
func (s *Staging) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove staged file", "path", path, "error", err)
	}
}

// SweepOlderThan removes staged files whose modification time is older than
// maxAge and reports how many were deleted.
func (s *Staging) SweepOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("failed to sweep staged file", "path", path, "error", err)
			}
			continue
		}
		removed++
	}
	return removed, nil
}

func sanitizeExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if ext == "" || ext == "." {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	if len(ext) > 10 {
		return ""
	}
	return ext
}

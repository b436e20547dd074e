// Package shots persists screenshot files with a time-based cleanup
// policy: entries older than the TTL are removed opportunistically on
// each save.
package shots

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store writes PNG screenshots under one directory. Safe for concurrent
// use: Save only touches the filesystem and the locked default ULID
// entropy.
type Store struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Store rooted at dir. TTL <= 0 defaults to one hour.
func New(dir string, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
	}
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data to a fresh ULID-named PNG and returns its path.
// Old entries are swept on the way.
func (s *Store) Save(data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("shots: mkdir %s: %w", s.dir, err)
	}

	s.cleanup()

	name := ulid.Make().String() + ".png"
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("shots: write %s: %w", path, err)
	}
	return path, nil
}

// cleanup removes screenshots older than the TTL. Best effort; failures
// are logged and ignored.
func (s *Store) cleanup() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-s.ttl)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				s.logger.Debug("shots: cleanup failed", "file", e.Name(), "error", err)
			}
		}
	}
}

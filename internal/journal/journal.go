// Package journal persists events to a SQLite table asynchronously.
// Write-only by design: the in-memory ring remains the single source
// queries read from, so the daemon's no-persistence contract for the
// buffer is untouched. Useful for post-mortem digging with plain sql.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/tabtail/internal/event"
)

// Schema for the events table.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	source TEXT NOT NULL,
	level TEXT,
	text TEXT,
	method TEXT,
	url TEXT,
	status INTEGER,
	error TEXT,
	resource_type TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`

// Store journals events in batches off the hot path.
type Store struct {
	db     *sql.DB
	ch     chan event.Event
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

// Open opens (or creates) the journal database and starts the flush
// loop. Import modernc.org/sqlite for the driver.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}

	s := &Store{
		db:     db,
		ch:     make(chan event.Event, 1024),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.flushLoop()
	return s, nil
}

// Record queues an event for async persistence. Non-blocking; drops
// when the buffer is full so the event path never feels backpressure.
// Events arriving after Close are dropped.
func (s *Store) Record(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

// Close drains the buffer, stops the flush loop, and closes the db.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]event.Event, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []event.Event) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Warn("journal: begin", "error", err)
		return
	}
	stmt, err := tx.Prepare(`
		INSERT INTO events (kind, timestamp, source, level, text, method, url, status, error, resource_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		s.logger.Warn("journal: prepare", "error", err)
		_ = tx.Rollback()
		return
	}
	for _, e := range batch {
		if _, err := stmt.Exec(
			string(e.Kind), e.Timestamp.UnixMilli(), string(e.Source),
			e.Level, e.Text, e.Method, e.URL, e.Status, e.Error, e.ResourceType,
		); err != nil {
			s.logger.Warn("journal: insert", "error", err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		s.logger.Warn("journal: commit", "error", err)
	}
}

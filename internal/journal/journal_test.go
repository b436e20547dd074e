package journal

import (
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabtail/internal/event"
)

func TestJournal_RecordAndDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	now := time.Now()
	s.Record(event.Event{Kind: event.KindConsole, Level: "error", Text: "boom", Timestamp: now, Source: event.SourcePage})
	s.Record(event.Event{Kind: event.KindResponse, Status: 404, URL: "https://example.com/", Timestamp: now, Source: event.SourceUnknown})

	// Close drains the channel before returning.
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("journaled rows: got %d, want 2", count)
	}

	var kind, text string
	err = s2.db.QueryRow(`SELECT kind, text FROM events WHERE kind = 'console'`).Scan(&kind, &text)
	if err != nil {
		t.Fatalf("select console row: %v", err)
	}
	if text != "boom" {
		t.Errorf("text: got %q, want boom", text)
	}
}

func TestJournal_RecordAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A straggling event from a still-draining producer must be dropped,
	// not sent on the closed channel.
	s.Record(event.Event{Kind: event.KindConsole, Text: "late", Timestamp: time.Now()})

	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

package shots

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSave_WritesAndNames(t *testing.T) {
	s := New(t.TempDir(), time.Hour, nil)

	path, err := s.Save([]byte("png-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("content: got %q", data)
	}
	if filepath.Ext(path) != ".png" {
		t.Errorf("extension: got %q, want .png", filepath.Ext(path))
	}
}

func TestSave_Concurrent(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, time.Hour, nil)

	const workers, perWorker = 8, 25

	var wg sync.WaitGroup
	paths := make(chan string, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				path, err := s.Save([]byte("png"))
				if err != nil {
					t.Errorf("save: %v", err)
					return
				}
				paths <- path
			}
		}()
	}
	wg.Wait()
	close(paths)

	seen := make(map[string]bool)
	for p := range paths {
		if seen[p] {
			t.Fatalf("duplicate screenshot path %q", p)
		}
		seen[p] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("saved files: got %d, want %d", len(seen), workers*perWorker)
	}
}

func TestSave_SweepsExpired(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, time.Hour, nil)

	old := filepath.Join(dir, "old.png")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(dir, "fresh.png")
	if err := os.WriteFile(fresh, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Save([]byte("new")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired screenshot should have been removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh screenshot should survive: %v", err)
	}
}

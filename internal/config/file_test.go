package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabtail.yaml")
	data := `
listen: 127.0.0.1:9000
browser:
  remote: 127.0.0.1:9333
  tab: localhost
buffer:
  capacity: 250
watch:
  login: "#login-form"
  toast: ".toast--error"
screenshots:
  ttl: 30m
journal:
  path: /tmp/tabtail.db
extension:
  id: abcdefghijklmnop
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("listen: got %q", cfg.Listen)
	}
	if cfg.Browser.Remote != "127.0.0.1:9333" || cfg.Browser.Tab != "localhost" {
		t.Errorf("browser: got %+v", cfg.Browser)
	}
	if cfg.Buffer.Capacity != 250 {
		t.Errorf("capacity: got %d", cfg.Buffer.Capacity)
	}
	if cfg.Watch["login"] != "#login-form" || cfg.Watch["toast"] != ".toast--error" {
		t.Errorf("watch: got %v", cfg.Watch)
	}
	if cfg.Screenshots.TTL != Duration(30*time.Minute) {
		t.Errorf("shots ttl: got %v", cfg.Screenshots.TTL)
	}
	if cfg.Journal.Path != "/tmp/tabtail.db" {
		t.Errorf("journal: got %q", cfg.Journal.Path)
	}
	if cfg.Extension.ID != "abcdefghijklmnop" {
		t.Errorf("extension: got %q", cfg.Extension.ID)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Listen == "" || cfg.Browser.Remote == "" {
		t.Errorf("defaults missing: %+v", cfg)
	}
	if cfg.Buffer.Capacity != 1000 {
		t.Errorf("default capacity: got %d, want 1000", cfg.Buffer.Capacity)
	}
	if cfg.Screenshots.TTL != Duration(time.Hour) {
		t.Errorf("default shots ttl: got %v, want 1h", cfg.Screenshots.TTL)
	}
}

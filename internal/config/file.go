// Package config handles tabtail configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level tabtail configuration.
type Config struct {
	Listen      string            `yaml:"listen"`
	Browser     BrowserConfig     `yaml:"browser"`
	Buffer      BufferConfig      `yaml:"buffer"`
	Watch       map[string]string `yaml:"watch"`
	Screenshots ShotsConfig       `yaml:"screenshots"`
	Journal     JournalConfig     `yaml:"journal"`
	Extension   ExtensionConfig   `yaml:"extension"`
}

// BrowserConfig points at the remote-debugging endpoint and selects the
// tab to tail.
type BrowserConfig struct {
	Remote        string `yaml:"remote"`         // host:port or ws:// URL
	Tab           string `yaml:"tab"`            // URL substring; empty = first http(s) tab
	CreateMissing bool   `yaml:"create_missing"` // open a fresh page when nothing matches
	CreateURL     string `yaml:"create_url"`
}

// BufferConfig sizes the event ring.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// ShotsConfig controls screenshot persistence.
type ShotsConfig struct {
	Dir string   `yaml:"dir"`
	TTL Duration `yaml:"ttl"`
}

// Duration accepts both "30m" strings and integer nanoseconds in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("config: parse duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// JournalConfig enables the optional SQLite event journal.
type JournalConfig struct {
	Path string `yaml:"path"` // empty = disabled
}

// ExtensionConfig names the extension under development, reported by
// the inspect endpoint.
type ExtensionConfig struct {
	ID string `yaml:"id"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied, for config-less
// runs driven by flags.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Discover looks for tabtail.yaml in the working directory, then under
// the user config dir. Empty string when nothing is found.
func Discover() string {
	candidates := []string{"tabtail.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "tabtail", "tabtail.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8931"
	}
	if c.Browser.Remote == "" {
		c.Browser.Remote = "127.0.0.1:9222"
	}
	if c.Browser.CreateURL == "" {
		c.Browser.CreateURL = "about:blank"
	}
	if c.Buffer.Capacity <= 0 {
		c.Buffer.Capacity = 1000
	}
	if c.Screenshots.Dir == "" {
		c.Screenshots.Dir = filepath.Join(os.TempDir(), "tabtail-shots")
	}
	if c.Screenshots.TTL <= 0 {
		c.Screenshots.TTL = Duration(time.Hour)
	}
}

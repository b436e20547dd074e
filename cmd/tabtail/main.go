// Command tabtail is the tab-tail daemon: it attaches to one browser
// tab over the remote debugging port, buffers what the tab reports, and
// answers queries over HTTP.
//
// Usage:
//
//	tabtail                                  # discover tabtail.yaml, else defaults
//	tabtail -config tabtail.yaml             # explicit config
//	tabtail -browser 127.0.0.1:9222 -tab localhost:3000
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabtail"
	"github.com/hazyhaar/tabtail/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to tabtail.yaml config file")
	browserAddr := flag.String("browser", "", "browser remote debugging address (overrides config)")
	tabFilter := flag.String("tab", "", "substring of the tab URL to attach to (overrides config)")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *browserAddr, *tabFilter, *listenAddr); err != nil {
		logger.Error("tabtail: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, browserAddr, tabFilter, listenAddr string) error {
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	if browserAddr != "" {
		cfg.Browser.Remote = browserAddr
	}
	if tabFilter != "" {
		cfg.Browser.Tab = tabFilter
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}

	d := tabtail.New(cfg, logger)
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer d.Stop()

	return server.New(d, cfg.Listen, logger).Start(ctx)
}

func loadConfig(path string, logger *slog.Logger) (*tabtail.Config, error) {
	if path == "" {
		path = tabtail.DiscoverConfig()
	}
	if path == "" {
		return tabtail.DefaultConfig(), nil
	}

	cfg, err := tabtail.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Info("tabtail: config loaded", "path", path)
	return cfg, nil
}

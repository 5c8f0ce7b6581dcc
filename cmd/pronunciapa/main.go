// Command pronunciapa runs the pronunciation evaluation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pronunciapa/pronunciapa/internal/config"
	"github.com/pronunciapa/pronunciapa/internal/kernel"
	"github.com/pronunciapa/pronunciapa/internal/observe"
	"github.com/pronunciapa/pronunciapa/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pronunciapa: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pronunciapa: %v\n", err)
		}
		return 3
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	slog.Info("pronunciapa starting",
		"config", *configPath,
		"listen_addr", listenAddr,
		"backend", cfg.Backend.Name,
		"strict_mode", cfg.StrictMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Plugin registry ───────────────────────────────────────────────────────
	registry := config.NewRegistry()
	registerBuiltinPlugins(registry)

	// ── Kernel ────────────────────────────────────────────────────────────────
	k, err := kernel.New(*cfg, registry)
	if err != nil {
		slog.Error("failed to initialise kernel", "err", err)
		return 3
	}
	defer func() {
		if err := k.Close(); err != nil {
			slog.Warn("kernel close error", "err", err)
		}
	}()

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
		}
		if err := k.ApplyConfig(*newCfg); err != nil {
			slog.Error("config reload rejected", "err", err)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	slog.Info("server ready — press Ctrl+C to shut down", "languages", k.Languages())
	srv := server.New(k, listenAddr)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// newLogger builds a text slog handler at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Command bolke is the main entry point for the Bolke voice shopping server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bolke-ai/bolke/internal/browser"
	"github.com/bolke-ai/bolke/internal/config"
	"github.com/bolke-ai/bolke/internal/gateway"
	"github.com/bolke-ai/bolke/internal/health"
	"github.com/bolke-ai/bolke/internal/history"
	"github.com/bolke-ai/bolke/internal/observe"
	"github.com/bolke-ai/bolke/internal/search"
	"github.com/bolke-ai/bolke/internal/session"
	geminilive "github.com/bolke-ai/bolke/pkg/provider/live/gemini"
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
			fmt.Fprintf(os.Stderr, "bolke: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "bolke: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("bolke starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "bolke",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Conversation history ──────────────────────────────────────────────────
	var hist history.Store
	var checkers []health.Checker
	switch cfg.History.Backend {
	case config.HistoryPostgres:
		pg, err := history.NewPgStore(ctx, cfg.History.DSN, cfg.History.Window)
		if err != nil {
			slog.Error("failed to connect history store", "err", err)
			return 1
		}
		defer pg.Close()
		hist = pg
		checkers = append(checkers, health.Checker{Name: "history", Check: pg.Ping})
		slog.Info("history store ready", "backend", "postgres")
	default:
		hist = history.NewMemStore(cfg.History.Window)
		slog.Info("history store ready", "backend", "memory")
	}

	// ── Search stack ──────────────────────────────────────────────────────────
	chrome := browser.NewChrome(cfg.Browser.ChromePath)
	adapter := browser.NewAdapter(chrome, browser.NewCDPNavigator(), metrics)
	retrier := search.NewRetrier(adapter, cfg.Search.MaxResults)
	aggregator := search.NewAggregator(adapter, metrics)
	checkers = append(checkers, health.Checker{Name: "chrome", Check: chrome.Check})

	// ── Live model provider ───────────────────────────────────────────────────
	var liveOpts []geminilive.Option
	if cfg.Live.Model != "" {
		liveOpts = append(liveOpts, geminilive.WithModel(cfg.Live.Model))
	}
	liveProvider := geminilive.New(cfg.Live.APIKey, liveOpts...)

	// ── Sessions ──────────────────────────────────────────────────────────────
	sessions := session.NewManager(session.ManagerConfig{
		Provider: liveProvider,
		Retrier:  retrier,
		Platform: firstPlatform(cfg.Search.Platforms),
		History:  hist,
		Voice:    cfg.Live.Voice,
		Metrics:  metrics,
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Compare(old, new)
		if !diff.Any() {
			return
		}
		if diff.LogLevelChanged {
			logLevel.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.PlatformsChanged {
			slog.Info("search platforms changed", "platforms", diff.NewPlatforms)
		}
		if diff.MaxResultsChanged {
			slog.Info("search max results changed", "max_results", diff.NewMaxResults)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Gateway ───────────────────────────────────────────────────────────────
	gw := gateway.New(gateway.Config{
		Sessions:   sessions,
		Aggregator: aggregator,
		Adapter:    adapter,
		Settings:   func() config.SearchConfig { return watcher.Current().Search },
		Health:     health.New(checkers...),
		Metrics:    metrics,
	})

	printStartupSummary(cfg)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		slog.Error("server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// firstPlatform returns the session search platform.
func firstPlatform(platforms []string) string {
	if len(platforms) > 0 {
		return platforms[0]
	}
	return browser.DefaultPlatform
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           Bolke — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Model", modelLabel(cfg.Live.Model))
	printRow("Voice", orDefault(cfg.Live.Voice, "(provider default)"))
	printRow("Platforms", fmt.Sprintf("%v", cfg.Search.Platforms))
	printRow("History", string(cfg.History.Backend))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func modelLabel(model string) string {
	if model == "" {
		return "(default native audio)"
	}
	return model
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

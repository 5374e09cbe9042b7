package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/scrollsettle/api"
	"github.com/use-agent/scrollsettle/cache"
	"github.com/use-agent/scrollsettle/cleaner"
	"github.com/use-agent/scrollsettle/config"
	"github.com/use-agent/scrollsettle/engine"
	"github.com/use-agent/scrollsettle/scraper"
)

const (
	// drainTimeout is how long in-flight jobs may finish after a shutdown signal.
	drainTimeout = 30 * time.Second

	// releaseTimeout is how long cancelled jobs get to close their remote pages.
	releaseTimeout = 5 * time.Second
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("scrollsettle starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"remoteURL", engine.Redact(cfg.Browser.RemoteURL),
		"maxScrolls", cfg.Scraper.MaxScrolls,
		"metric", cfg.Scraper.Metric,
	)

	// ── 3. Initialise scraper (no browser is launched locally) ──────
	sc := scraper.NewScraper(engine.NewRodConnector(), cfg.Browser, cfg.Scraper, slog.Default())

	// ── 4. Initialise cleaner and cache ─────────────────────────────
	cl := cleaner.NewCleaner()
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Close()

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(sc, cl, cfg, cc, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	// Jobs inherit jobsCtx, so cancelling it makes every running job
	// release its remote page and session.
	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return jobsCtx },
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String(), "activeJobs", sc.ActiveJobs())

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
		cancelJobs()
		waitForJobs(sc, releaseTimeout)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("scrollsettle stopped")
}

// waitForJobs blocks until no job is running or d elapses.
func waitForJobs(sc *scraper.Scraper, d time.Duration) {
	deadline := time.Now().Add(d)
	for sc.ActiveJobs() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if n := sc.ActiveJobs(); n > 0 {
		slog.Warn("jobs still running at exit", "activeJobs", n)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

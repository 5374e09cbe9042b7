package scraper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/scrollsettle/config"
	"github.com/use-agent/scrollsettle/engine"
)

// Scraper runs convergence jobs against a remote browser host. Every job
// opens its own session and page and releases both before returning.
// It is safe for concurrent use.
type Scraper struct {
	connector  engine.Connector
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	logger     *slog.Logger
	activeJobs atomic.Int32
	startTime  time.Time
}

// NewScraper creates a Scraper. A nil logger uses slog.Default().
func NewScraper(connector engine.Connector, browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		connector:  connector,
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// ActiveJobs returns the number of jobs currently running.
func (s *Scraper) ActiveJobs() int {
	return int(s.activeJobs.Load())
}

// Uptime returns how long the scraper has existed.
func (s *Scraper) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// RemoteURL returns the configured remote browser endpoint with any
// credentials stripped.
func (s *Scraper) RemoteURL() string {
	return engine.Redact(s.browserCfg.RemoteURL)
}

// BrowserConfig returns the remote browser configuration.
func (s *Scraper) BrowserConfig() config.BrowserConfig { return s.browserCfg }

// ScraperConfig returns the job defaults.
func (s *Scraper) ScraperConfig() config.ScraperConfig { return s.scraperCfg }

// Ping opens and immediately releases one session to the remote browser.
func (s *Scraper) Ping(ctx context.Context) error {
	session, err := Acquire(ctx, s.connector, s.browserCfg.RemoteURL, 1, 0, s.logger)
	if err != nil {
		return err
	}
	if derr := session.Disconnect(); derr != nil {
		s.logger.Warn("failed to disconnect ping session", "error", derr)
	}
	return nil
}

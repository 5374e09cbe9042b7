package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/scrollsettle/config"
	"github.com/use-agent/scrollsettle/engine"
	"github.com/use-agent/scrollsettle/models"
)

// JobConfig is the immutable parameter set of one job. Build it with
// JobFromRequest so that unset fields carry server defaults.
type JobConfig struct {
	URL string

	MaxScrolls        int
	ScrollDelay       time.Duration
	IdleStable        time.Duration
	PollInterval      time.Duration
	Timeout           time.Duration
	NavigationTimeout time.Duration
	SettleDelay       time.Duration

	ViewportWidth  int
	ViewportHeight int

	Metric    string
	WaitUntil engine.WaitCondition

	UserAgent string
	Headers   map[string]string

	Stealth        bool
	BlockResources bool
	BlockAds       bool
	RemoveOverlays bool

	LoadMoreSelector string

	ExtractRetries   int
	ExtractMinLength int
	ExtractBackoff   time.Duration
}

// JobFromRequest merges a request with the server configuration. Zero
// values in the request mean "use the default". The overall timeout is
// clamped to cfg.MaxTimeout.
func JobFromRequest(req *models.ScrapeRequest, cfg config.ScraperConfig, bcfg config.BrowserConfig) JobConfig {
	job := JobConfig{
		URL:               strings.TrimSpace(req.URL),
		MaxScrolls:        intOr(req.MaxScrolls, cfg.MaxScrolls),
		ScrollDelay:       msOr(req.ScrollDelayMs, cfg.ScrollDelay),
		IdleStable:        msOr(req.IdleStableMs, cfg.IdleStable),
		PollInterval:      msOr(req.PollIntervalMs, cfg.PollInterval),
		Timeout:           secOr(req.Timeout, cfg.DefaultTimeout),
		NavigationTimeout: secOr(req.NavigationTimeout, cfg.NavigationTimeout),
		SettleDelay:       cfg.SettleDelay,
		ViewportWidth:     cfg.ViewportWidth,
		ViewportHeight:    cfg.ViewportHeight,
		Metric:            req.Metric,
		WaitUntil:         engine.WaitCondition(req.WaitUntil),
		UserAgent:         req.UserAgent,
		Headers:           req.Headers,
		Stealth:           req.Stealth,
		BlockResources:    req.BlockResources,
		BlockAds:          req.BlockAds,
		RemoveOverlays:    req.RemoveOverlays,
		LoadMoreSelector:  req.LoadMoreSelector,
		ExtractRetries:    cfg.ExtractRetries,
		ExtractMinLength:  cfg.ExtractMinLength,
		ExtractBackoff:    cfg.ExtractBackoff,
	}

	if req.Viewport != nil {
		job.ViewportWidth = intOr(req.Viewport.Width, job.ViewportWidth)
		job.ViewportHeight = intOr(req.Viewport.Height, job.ViewportHeight)
	}
	if job.Metric == "" {
		job.Metric = cfg.Metric
	}
	if job.Metric != MetricHeight {
		job.Metric = MetricNodes
	}
	if job.WaitUntil == "" {
		job.WaitUntil = engine.WaitLoad
	}
	if job.UserAgent == "" {
		job.UserAgent = bcfg.UserAgent
	}
	if cfg.MaxTimeout > 0 && job.Timeout > cfg.MaxTimeout {
		job.Timeout = cfg.MaxTimeout
	}
	return job
}

// Validate checks the fields a job cannot run without.
func (j JobConfig) Validate() error {
	if j.URL == "" {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "url is required", nil)
	}
	u, err := url.Parse(j.URL)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "url is malformed", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("url must be an absolute http(s) URL, got %q", j.URL), nil)
	}
	if j.Timeout <= 0 {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "timeout must be positive", nil)
	}
	return nil
}

// Settings reports the effective parameters for the response.
func (j JobConfig) Settings() models.Settings {
	return models.Settings{
		MaxScrolls:       j.MaxScrolls,
		ScrollDelayMs:    j.ScrollDelay.Milliseconds(),
		IdleStableMs:     j.IdleStable.Milliseconds(),
		PollIntervalMs:   j.PollInterval.Milliseconds(),
		TimeoutMs:        j.Timeout.Milliseconds(),
		NavigationMs:     j.NavigationTimeout.Milliseconds(),
		ViewportWidth:    j.ViewportWidth,
		ViewportHeight:   j.ViewportHeight,
		Metric:           j.Metric,
		WaitUntil:        string(j.WaitUntil),
		Stealth:          j.Stealth,
		BlockResources:   j.BlockResources,
		BlockAds:         j.BlockAds,
		RemoveOverlays:   j.RemoveOverlays,
		LoadMoreSelector: j.LoadMoreSelector,
	}
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func msOr(ms int, fallback time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func secOr(sec int, fallback time.Duration) time.Duration {
	if sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return fallback
}

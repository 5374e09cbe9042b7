package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/use-agent/scrollsettle/engine"
	"github.com/use-agent/scrollsettle/models"
)

// abandonGrace is how long a detector that lost the deadline race may take
// to notice its cancelled context.
var abandonGrace = 2 * time.Second

const (
	// extractTimeout bounds unmarking, settling and extraction, which run
	// after the overall deadline may already have passed.
	extractTimeout = 20 * time.Second
)

// Run is the job orchestrator.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Validate             – reject jobs without an absolute http(s) URL
//  2. Acquire session      – connect with bounded retries
//  3. Open page            – stealth and resource blocking applied at creation
//  4. Configure            – viewport and identity (best-effort)
//  5. Navigate             – bounded by NavigationTimeout, not the job timeout
//  6. Locate               – mark the main scroll container
//  7. Converge             – detector raced against the remaining deadline
//  8. Unmark + settle      – best-effort
//  9. Extract              – never fails, may return a placeholder
//
// The page and then the session are released by deferred cleanup on every
// path, including panics, which surface as INTERNAL_ERROR.
func (s *Scraper) Run(ctx context.Context, job JobConfig) (result *JobResult, err error) {
	start := time.Now()
	logger := s.logger.With("url", job.URL)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = models.NewScrapeError(models.ErrCodeInternal, fmt.Sprintf("job panicked: %v", r), nil)
		}
	}()

	// ── 1. Validate ──────────────────────────────────────────────────
	if err := job.Validate(); err != nil {
		return nil, err
	}

	s.activeJobs.Add(1)
	defer s.activeJobs.Add(-1)

	deadline := start.Add(job.Timeout)
	jobCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	// ── 2. Acquire session ───────────────────────────────────────────
	session, err := Acquire(jobCtx, s.connector, s.browserCfg.RemoteURL,
		s.browserCfg.ConnectRetries, s.browserCfg.ConnectBaseDelay, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if derr := session.Disconnect(); derr != nil {
			logger.Warn("cleanup: failed to disconnect session", "error", derr)
		}
	}()

	// ── 3. Open page ─────────────────────────────────────────────────
	opts := engine.PageOptions{Stealth: job.Stealth, BlockAds: job.BlockAds}
	if job.BlockResources {
		opts.BlockedResourceTypes = s.browserCfg.BlockedResourceTypes
	}
	page, err := session.NewPage(jobCtx, opts)
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeConnection, "failed to open page on remote browser")
	}
	defer func() {
		if cerr := page.Close(); cerr != nil && !errors.Is(cerr, engine.ErrPageClosed) {
			logger.Warn("cleanup: failed to close page", "error", cerr)
		}
	}()

	// ── 4. Configure viewport and identity ───────────────────────────
	if verr := page.SetViewport(jobCtx, job.ViewportWidth, job.ViewportHeight); verr != nil {
		logger.Warn("failed to set viewport, proceeding with browser default", "error", verr)
	}
	identity := engine.Identity{UserAgent: job.UserAgent, Headers: buildHeaders(job.URL, job.Headers)}
	if ierr := page.SetIdentity(jobCtx, identity); ierr != nil {
		logger.Warn("failed to set page identity", "error", ierr)
	}

	// ── 5. Navigate ──────────────────────────────────────────────────
	navCtx, navCancel := context.WithTimeout(jobCtx, job.NavigationTimeout)
	navErr := page.Navigate(navCtx, job.URL, job.WaitUntil)
	navCancel()
	if navErr != nil {
		return nil, categorizeError(navErr, models.ErrCodeNavigation, "navigation to target URL failed")
	}
	navElapsed := time.Since(start)

	if job.RemoveOverlays {
		removeOverlays(jobCtx, page, logger)
	}

	// ── 6. Locate ────────────────────────────────────────────────────
	target := Locate(jobCtx, page, logger)

	// ── 7. Converge ──────────────────────────────────────────────────
	convStart := time.Now()
	outcome, err := s.converge(jobCtx, page, target, job, deadline, logger)
	if err != nil {
		return nil, err
	}
	convElapsed := time.Since(convStart)

	// ── 8. Unmark + settle ───────────────────────────────────────────
	postCtx, postCancel := context.WithTimeout(ctx, extractTimeout)
	defer postCancel()

	if outcome.State != StateDetached {
		if uerr := Unmark(postCtx, page); uerr != nil {
			logger.Debug("failed to remove scroll target marker", "error", uerr)
		}
		_ = sleepCtx(postCtx, job.SettleDelay)
	}

	// ── 9. Extract ───────────────────────────────────────────────────
	extractor := &Extractor{
		MaxRetries: job.ExtractRetries,
		MinLength:  job.ExtractMinLength,
		Backoff:    job.ExtractBackoff,
		Logger:     logger,
	}
	extraction := extractor.Extract(postCtx, page)

	title, finalURL := "", ""
	if extraction.Method != MethodPageClosed {
		if t, u, ierr := page.Info(postCtx); ierr == nil {
			title, finalURL = t, u
		} else {
			logger.Debug("failed to read page info", "error", ierr)
		}
	}
	if finalURL == "" {
		finalURL = job.URL
	}

	result = &JobResult{
		HTML:               extraction.HTML,
		Title:              title,
		FinalURL:           finalURL,
		Outcome:            outcome,
		Metric:             job.Metric,
		Extraction:         extraction,
		Elapsed:            time.Since(start),
		NavigationElapsed:  navElapsed,
		ConvergenceElapsed: convElapsed,
		Settings:           job.Settings(),
	}

	logger.Info("job finished",
		"outcome", outcome.State,
		"attempts", outcome.Attempts,
		"finalMetric", outcome.FinalMetric,
		"extraction", extraction.Method,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// converge runs the detector in its own goroutine and races it against the
// remaining overall deadline. A detector that loses the race is cancelled
// and given abandonGrace to return; if it does not, the job fails.
func (s *Scraper) converge(ctx context.Context, page engine.Page, target ScrollTarget, job JobConfig, deadline time.Time, logger *slog.Logger) (Outcome, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		logger.Warn("deadline passed before convergence started")
		return Outcome{State: StateTimedOut}, nil
	}

	detector := &Detector{
		Metric:           MetricByName(job.Metric),
		MaxAttempts:      job.MaxScrolls,
		ScrollDelay:      job.ScrollDelay,
		IdleStable:       job.IdleStable,
		PollInterval:     job.PollInterval,
		Timeout:          remaining,
		LoadMoreSelector: job.LoadMoreSelector,
		Logger:           logger,
	}

	detCtx, detCancel := context.WithCancel(ctx)
	defer detCancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("convergence detector panicked", "panic", r)
				done <- Outcome{State: StateDetached}
			}
		}()
		done <- detector.Detect(detCtx, page, target)
	}()

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case o := <-done:
		return o, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	detCancel()
	grace := time.NewTimer(abandonGrace)
	defer grace.Stop()

	select {
	case o := <-done:
		if o.State != StateStable {
			o.State = StateTimedOut
		}
		return o, nil
	case <-grace.C:
		logger.Error("convergence detector did not stop after deadline")
		return Outcome{}, models.NewScrapeError(models.ErrCodeTimeout,
			"convergence did not stop after the job deadline", context.DeadlineExceeded)
	}
}

// buildHeaders merges the caller's headers with a Google search Referer,
// unless the caller set one.
func buildHeaders(rawURL string, headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	if _, hasReferer := headers["Referer"]; !hasReferer {
		if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
			out["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range headers {
		out[k] = v
	}
	return out
}

// removeOverlaysJS removes fixed/sticky positioned elements with high
// z-index, which are typically cookie consent banners and popup overlays.
// Scroll locks set by modals are lifted as well.
const removeOverlaysJS = `() => {
	let removed = 0;
	for (const el of document.querySelectorAll('*')) {
		const style = window.getComputedStyle(el);
		if (style.position === 'fixed' || style.position === 'sticky') {
			const z = parseInt(style.zIndex, 10);
			if (z >= 900) {
				el.remove();
				removed++;
			}
		}
	}
	const selectors = [
		'[class*="cookie"]', '[class*="consent"]', '[class*="overlay"]',
		'[id*="cookie"]', '[id*="consent"]', '[id*="overlay"]',
		'[class*="popup"]', '[id*="popup"]',
		'[class*="gdpr"]', '[id*="gdpr"]',
	];
	for (const sel of selectors) {
		document.querySelectorAll(sel).forEach(el => {
			const style = window.getComputedStyle(el);
			if (style.position === 'fixed' || style.position === 'sticky' || style.position === 'absolute') {
				el.remove();
				removed++;
			}
		});
	}
	document.documentElement.style.overflow = '';
	if (document.body) document.body.style.overflow = '';
	return removed;
}`

func removeOverlays(ctx context.Context, page engine.Page, logger *slog.Logger) {
	res, err := page.Eval(ctx, removeOverlaysJS)
	if err != nil {
		logger.Debug("overlay removal failed", "error", err)
		return
	}
	logger.Debug("overlays removed", "count", res.Int())
}

// categorizeError wraps raw errors into typed ScrapeErrors so the API layer
// can map them to appropriate HTTP status codes. Deadline and cancellation
// become SCRAPE_TIMEOUT; everything else gets code.
func categorizeError(err error, code, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(code, msg, err)
	}
}

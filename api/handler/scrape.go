package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrollsettle/cache"
	"github.com/use-agent/scrollsettle/cleaner"
	"github.com/use-agent/scrollsettle/models"
	"github.com/use-agent/scrollsettle/scraper"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults, build the job.
//  2. Cache lookup (only when max_age > 0).
//  3. Scraper.Run   → converged document + convergence metadata.
//  4. Cleaner.Project → content, items, links.
//  5. Fill timing, cache confirmed results, return 200.
//
// Degraded jobs (not converged, placeholder document) still return 200;
// the convergence block tells the caller how complete the content is.
func Scrape(sc *scraper.Scraper, cl *cleaner.Cleaner, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), nil), models.TimingInfo{})
			return
		}
		req.Defaults()

		if err := cleaner.ValidateSelectors(
			req.ItemSelector, req.TitleSelector, req.LinkSelector, req.CSSSelector, req.LoadMoreSelector,
		); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), nil), models.TimingInfo{})
			return
		}
		if err := cleaner.ValidateSelectors(req.ExcludeSelectors...); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), nil), models.TimingInfo{})
			return
		}

		job := scraper.JobFromRequest(&req, sc.ScraperConfig(), sc.BrowserConfig())
		opts := projectOptions(&req)

		// ── 2. Cache lookup ─────────────────────────────────────────
		var cacheKey string
		if cc != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(job.URL, job.Settings(), opts)
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Run the job ──────────────────────────────────────────
		result, err := sc.Run(c.Request.Context(), job)
		if err != nil {
			respondError(c, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			})
			return
		}

		// ── 4. Project ──────────────────────────────────────────────
		proj, err := cl.Project(result.HTML, result.FinalURL, opts)
		if err != nil {
			respondError(c, err, models.TimingInfo{
				TotalMs:       time.Since(totalStart).Milliseconds(),
				NavigationMs:  result.NavigationElapsed.Milliseconds(),
				ConvergenceMs: result.ConvergenceElapsed.Milliseconds(),
			})
			return
		}

		// ── 5. Respond ──────────────────────────────────────────────
		resp := &models.ScrapeResponse{
			Success: true,
			Content: proj.Content,
			Items:   proj.Items,
			Links:   proj.Links,
			Metadata: models.Metadata{
				Title:     result.Title,
				SourceURL: job.URL,
				FinalURL:  result.FinalURL,
			},
			Convergence: result.ConvergenceInfo(),
			Settings:    result.Settings,
			Timing: models.TimingInfo{
				TotalMs:       time.Since(totalStart).Milliseconds(),
				NavigationMs:  result.NavigationElapsed.Milliseconds(),
				ConvergenceMs: result.ConvergenceElapsed.Milliseconds(),
			},
		}

		if cacheKey != "" {
			resp.CacheStatus = "miss"
			if cacheable(result) {
				cc.Set(cacheKey, resp)
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

func projectOptions(req *models.ScrapeRequest) cleaner.ProjectOptions {
	return cleaner.ProjectOptions{
		ExcludeSelectors: req.ExcludeSelectors,
		CSSSelector:      req.CSSSelector,
		Items: cleaner.ItemSelectors{
			Item:   req.ItemSelector,
			Title:  req.TitleSelector,
			Link:   req.LinkSelector,
			Dedupe: req.DedupeItems,
		},
		OutputFormat: req.OutputFormat,
		IncludeLinks: req.IncludeLinks,
	}
}

// cacheable reports whether a result is complete enough to serve again:
// only confirmed convergence with a real document.
func cacheable(r *scraper.JobResult) bool {
	if !r.Converged() {
		return false
	}
	m := r.Extraction.Method
	return m == scraper.MethodDocument || m == scraper.MethodRootMarkup
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, "internal error", err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.ScrapeResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeConnection:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

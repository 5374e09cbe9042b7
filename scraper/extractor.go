package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/scrollsettle/engine"
)

// ExtractionMethod names how the final document was obtained.
type ExtractionMethod string

const (
	MethodDocument   ExtractionMethod = "document"
	MethodRootMarkup ExtractionMethod = "root_markup"
	MethodPageClosed ExtractionMethod = "page_closed"
	MethodFailed     ExtractionMethod = "failed"
)

// Placeholder documents returned instead of an error.
const (
	PageClosedHTML       = `<html><head><title>page closed</title></head><body><!-- scrollsettle: page closed before content could be extracted --></body></html>`
	ExtractionFailedHTML = `<html><head><title>extraction failed</title></head><body><!-- scrollsettle: content extraction failed --></body></html>`
)

// Extractor defaults.
const (
	DefaultExtractRetries   = 3
	DefaultExtractMinLength = 100
	DefaultExtractBackoff   = 500 * time.Millisecond
)

const rootMarkupJS = `() => document.documentElement ? document.documentElement.outerHTML : ''`

// Extraction is the document an Extractor settled on.
type Extraction struct {
	HTML     string
	Method   ExtractionMethod
	Attempts int
}

// Extractor pulls the serialised document out of a page, falling back to
// in-page markup and finally to a placeholder.
type Extractor struct {
	MaxRetries int
	// MinLength is the shortest result accepted as a real document;
	// anything at or below it is treated as a blank or error page.
	MinLength int
	Backoff   time.Duration
	Logger    *slog.Logger
}

// Extract never returns an error. A closed page yields PageClosedHTML and
// exhausted retries yield ExtractionFailedHTML.
func (e *Extractor) Extract(ctx context.Context, page engine.Page) Extraction {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := e.MaxRetries
	if retries < 1 {
		retries = DefaultExtractRetries
	}
	minLen := e.MinLength
	if minLen <= 0 {
		minLen = DefaultExtractMinLength
	}
	backoff := e.Backoff
	if backoff <= 0 {
		backoff = DefaultExtractBackoff
	}

	closed := func(attempt int) Extraction {
		logger.Warn("page closed before extraction", "attempt", attempt)
		return Extraction{HTML: PageClosedHTML, Method: MethodPageClosed, Attempts: attempt}
	}

	made := 0
	for attempt := 1; attempt <= retries; attempt++ {
		made = attempt
		if page.Closed(ctx) {
			return closed(attempt)
		}

		html, err := page.HTML(ctx)
		if err == nil && len(html) > minLen {
			return Extraction{HTML: html, Method: MethodDocument, Attempts: attempt}
		}
		if errors.Is(err, engine.ErrPageClosed) {
			return closed(attempt)
		}
		if err != nil {
			logger.Debug("document serialisation failed", "attempt", attempt, "error", err)
		}

		res, err := page.Eval(ctx, rootMarkupJS)
		if err == nil {
			if markup := res.Str(); len(markup) > minLen {
				logger.Debug("extracted via root markup", "attempt", attempt)
				return Extraction{HTML: markup, Method: MethodRootMarkup, Attempts: attempt}
			}
		} else if errors.Is(err, engine.ErrPageClosed) {
			return closed(attempt)
		} else {
			logger.Debug("root markup evaluation failed", "attempt", attempt, "error", err)
		}

		if attempt < retries {
			if err := sleepCtx(ctx, backoff*time.Duration(attempt)); err != nil {
				break
			}
		}
	}

	logger.Warn("content extraction failed, returning placeholder", "attempts", made, "retries", retries)
	return Extraction{HTML: ExtractionFailedHTML, Method: MethodFailed, Attempts: made}
}

package cleaner

import (
	"log/slog"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/use-agent/scrollsettle/models"
)

// Output formats accepted by Project.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// Cleaner turns a materialised document into response content. The
// converter is created once and reused across all requests (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

// ProjectOptions selects what Project derives from the document.
type ProjectOptions struct {
	ExcludeSelectors []string
	CSSSelector      string
	Items            ItemSelectors
	OutputFormat     string
	IncludeLinks     bool
}

// Projection is the client-facing view of a document.
type Projection struct {
	Content string
	Items   []models.Item
	Links   []models.Link
}

// Project runs the projection pipeline:
//
//  1. Strip ExcludeSelectors.
//  2. Extract items and links from the stripped document, so they are
//     never narrowed by CSSSelector.
//  3. Narrow Content to CSSSelector matches.
//  4. Convert Content to the requested format.
//
// Selectors are expected to have passed ValidateSelectors; a selector that
// fails here is logged and skipped rather than failing a finished job.
func (c *Cleaner) Project(rawHTML string, sourceURL string, opts ProjectOptions) (*Projection, error) {
	doc := RemoveSelectors(rawHTML, opts.ExcludeSelectors)

	p := &Projection{}
	if opts.Items.Item != "" {
		p.Items = ExtractItems(doc, sourceURL, opts.Items)
	}
	if opts.IncludeLinks {
		p.Links = ExtractLinks(doc, sourceURL)
	}

	content := doc
	if opts.CSSSelector != "" {
		narrowed, n, err := ApplyCSSSelector(doc, opts.CSSSelector)
		switch {
		case err != nil:
			slog.Warn("css selector failed, returning full document",
				"selector", opts.CSSSelector, "error", err,
			)
		case n == 0:
			slog.Debug("css selector matched nothing, returning full document",
				"selector", opts.CSSSelector,
			)
		default:
			content = narrowed
		}
	}

	switch opts.OutputFormat {
	case FormatMarkdown:
		md, err := ToMarkdown(c.mdConverter, content, sourceURL)
		if err != nil {
			return nil, models.NewScrapeError(
				models.ErrCodeInternal,
				"markdown conversion failed",
				err,
			)
		}
		p.Content = md
	default:
		p.Content = content
	}

	return p, nil
}

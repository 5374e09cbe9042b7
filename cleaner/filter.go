package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RemoveSelectors strips every element matching any of selectors from
// rawHTML. Typical targets are ad slots, sticky banners and "recommended
// for you" rails that the scroll loop dragged in alongside the feed.
//
// If no selectors are given, or the document cannot be parsed, rawHTML is
// returned unchanged.
func RemoveSelectors(rawHTML string, selectors []string) string {
	if len(selectors) == 0 {
		return rawHTML
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	for _, selector := range selectors {
		if strings.TrimSpace(selector) == "" {
			continue
		}
		doc.Find(selector).Remove()
	}

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

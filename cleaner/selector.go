package cleaner

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ValidateSelectors checks that every non-empty selector compiles. Selector
// groups ("a, b") are accepted.
func ValidateSelectors(selectors ...string) error {
	for _, s := range selectors {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(s); err != nil {
			return fmt.Errorf("invalid selector %q: %w", s, err)
		}
	}
	return nil
}

// ApplyCSSSelector returns the concatenated outer HTML of every element in
// rawHTML matching selector, and the number of matches.
//
// When nothing matches, rawHTML is returned unchanged with a count of 0 so
// a too-narrow selector never turns a materialised feed into an empty body.
func ApplyCSSSelector(rawHTML string, selector string) (string, int, error) {
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return "", 0, err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", 0, err
	}

	matches := cascadia.QueryAll(doc, group)
	if len(matches) == 0 {
		return rawHTML, 0, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", 0, err
		}
	}
	return buf.String(), len(matches), nil
}

package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/scrollsettle/models"
	"github.com/use-agent/scrollsettle/simhash"
)

// itemDupThreshold is the SimHash distance at or below which two item texts
// are compared in full.
const itemDupThreshold = 3

// textSet recognises link-less items rendered twice. Fingerprints narrow the
// comparison; only an identical normalised text is a duplicate, so distinct
// items sharing most of their words are kept.
type textSet struct {
	index *simhash.Index
	texts []string
}

func newTextSet() *textSet {
	return &textSet{index: simhash.NewIndex(itemDupThreshold)}
}

// add records text and reports whether it was new.
func (s *textSet) add(text string) bool {
	norm := strings.ToLower(text)
	fp := simhash.Fingerprint(norm)
	for _, i := range s.index.Near(fp) {
		if s.texts[i] == norm {
			return false
		}
	}
	s.index.Insert(fp)
	s.texts = append(s.texts, norm)
	return true
}

// ExtractLinks returns every distinct http(s) link in rawHTML, resolved
// against sourceURL, in document order.
func ExtractLinks(rawHTML string, sourceURL string) []models.Link {
	links := []models.Link{}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return links
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return links
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := resolveHref(base, href)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, models.Link{Href: abs, Text: collapseSpace(s.Text())})
	})

	return links
}

// ItemSelectors configures ExtractItems. Item is required; Title and Link
// are evaluated inside each item.
type ItemSelectors struct {
	Item  string
	Title string
	Link  string

	// Dedupe drops items repeated by virtualised lists: same link, or the
	// same text (ignoring case and spacing) when the item has no link.
	Dedupe bool
}

// ExtractItems returns one entry per element matching sel.Item.
//
// Title is the text of the first sel.Title match inside the item, or the
// first heading when sel.Title is empty. Link is the href of the first
// sel.Link match (default "a[href]"), resolved against sourceURL. Items with
// no title, link or text are skipped: they are usually skeleton placeholders
// left behind by lazy loaders.
func ExtractItems(rawHTML string, sourceURL string, sel ItemSelectors) []models.Item {
	items := []models.Item{}
	if strings.TrimSpace(sel.Item) == "" {
		return items
	}

	base, _ := url.Parse(sourceURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return items
	}

	titleSel := sel.Title
	if titleSel == "" {
		titleSel = "h1, h2, h3, h4"
	}
	linkSel := sel.Link
	if linkSel == "" {
		linkSel = "a[href]"
	}

	seenLinks := make(map[string]struct{})
	texts := newTextSet()

	doc.Find(sel.Item).Each(func(_ int, s *goquery.Selection) {
		item := models.Item{
			Title: collapseSpace(s.Find(titleSel).First().Text()),
		}

		linkNode := s.Find(linkSel).First()
		if linkNode.Length() == 0 && goquery.NodeName(s) == "a" {
			linkNode = s
		}
		if href, ok := linkNode.Attr("href"); ok && base != nil {
			if abs, ok := resolveHref(base, href); ok {
				item.Link = abs
			}
		}

		text := collapseSpace(s.Text())
		if item.Title == "" && item.Link == "" && text == "" {
			return
		}
		if sel.Dedupe {
			if item.Link != "" {
				if _, dup := seenLinks[item.Link]; dup {
					return
				}
				seenLinks[item.Link] = struct{}{}
			} else if !texts.add(text) {
				return
			}
		}
		if h, err := goquery.OuterHtml(s); err == nil {
			item.HTML = h
		}
		items = append(items, item)
	})

	return items
}

// resolveHref makes href absolute and rejects fragments, javascript:,
// mailto: and other non-http(s) schemes.
func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

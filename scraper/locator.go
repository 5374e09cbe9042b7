package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/use-agent/scrollsettle/engine"
)

// markerAttr is the attribute that tags the chosen scroll container.
const markerAttr = "data-scrollsettle-target"

// ScrollTarget identifies the element that scrolls. The element itself
// lives in the remote page, so it is re-resolved through its marker
// attribute on every call.
type ScrollTarget struct {
	Marker string

	// Root is true when the document itself scrolls; the window is
	// scrolled instead of an element.
	Root bool
}

// RootTarget is the fallback target: the document's scrolling root, unmarked.
var RootTarget = ScrollTarget{Root: true}

// Selector returns the CSS selector resolving the target, or "" when the
// target was never marked.
func (t ScrollTarget) Selector() string {
	if t.Marker == "" {
		return ""
	}
	return fmt.Sprintf(`[%s="%s"]`, markerAttr, t.Marker)
}

// locateJS picks the element with the largest scroll slack
// (scrollHeight - clientHeight) whose overflow actually lets it scroll, and
// marks it. The document root wins when nothing has positive slack.
const locateJS = `(attr, marker) => {
	const root = document.scrollingElement || document.documentElement;
	let best = null, bestSlack = 0;
	for (const el of document.querySelectorAll('*')) {
		const slack = el.scrollHeight - el.clientHeight;
		if (slack <= bestSlack) continue;
		if (el !== root && el !== document.body && el !== document.documentElement) {
			const oy = getComputedStyle(el).overflowY;
			if (oy !== 'auto' && oy !== 'scroll' && oy !== 'overlay') continue;
		}
		best = el;
		bestSlack = slack;
	}
	const isRoot = !best || best === root || best === document.body || best === document.documentElement;
	const el = isRoot ? root : best;
	if (el) el.setAttribute(attr, marker);
	return { root: isRoot, slack: bestSlack, tag: el ? el.tagName.toLowerCase() : '' };
}`

const unmarkJS = `(attr) => {
	for (const el of document.querySelectorAll('[' + attr + ']')) el.removeAttribute(attr);
	return true;
}`

// Locate finds and marks the page's main scroll container. It never fails:
// any evaluation error degrades to RootTarget.
func Locate(ctx context.Context, page engine.Page, logger *slog.Logger) ScrollTarget {
	if logger == nil {
		logger = slog.Default()
	}

	marker := uuid.NewString()
	res, err := page.Eval(ctx, locateJS, markerAttr, marker)
	if err != nil {
		logger.Debug("scroll target lookup failed, using document root", "error", err)
		return RootTarget
	}

	target := ScrollTarget{Marker: marker, Root: res.Get("root").Bool()}
	logger.Debug("scroll target located",
		"root", target.Root,
		"tag", res.Get("tag").Str(),
		"slack", res.Get("slack").Int(),
	)
	return target
}

// Unmark removes the target's marker from the page.
func Unmark(ctx context.Context, page engine.Page) error {
	_, err := page.Eval(ctx, unmarkJS, markerAttr)
	return err
}

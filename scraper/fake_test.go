package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/scrollsettle/engine"
	"github.com/ysmood/gson"
)

var errRefused = errors.New("connection refused")

// fakeConnector hands out fakeSessions and records every one of them so
// tests can check that each was released exactly once.
type fakeConnector struct {
	mu sync.Mutex

	// failFirst makes the first n Connect calls fail.
	failFirst int
	// deadFirst makes the first n sessions fail the liveness check.
	deadFirst int

	newPage func() *fakePage
	pageErr error

	connects int
	sessions []*fakeSession
}

func (c *fakeConnector) Connect(ctx context.Context, endpoint string) (engine.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connects <= c.failFirst {
		return nil, fmt.Errorf("dial %s: %w", endpoint, errRefused)
	}
	s := &fakeSession{
		alive:   c.connects > c.failFirst+c.deadFirst,
		newPage: c.newPage,
		pageErr: c.pageErr,
	}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *fakeConnector) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// assertReleased checks that every session was disconnected exactly once
// and every page it opened was closed exactly once.
func (c *fakeConnector) assertReleased(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.sessions {
		assert.Equal(t, 1, s.disconnectCount(), "session %d disconnects", i)
		for j, p := range s.openedPages() {
			assert.Equal(t, 1, p.closeCount(), "session %d page %d closes", i, j)
		}
	}
}

type fakeSession struct {
	mu          sync.Mutex
	alive       bool
	newPage     func() *fakePage
	pageErr     error
	pages       []*fakePage
	disconnects int
	opts        engine.PageOptions
}

func (s *fakeSession) Alive(ctx context.Context) bool { return s.alive }

func (s *fakeSession) NewPage(ctx context.Context, opts engine.PageOptions) (engine.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	s.opts = opts
	var p *fakePage
	if s.newPage != nil {
		p = s.newPage()
	} else {
		p = newFakePage(constant(50))
	}
	s.pages = append(s.pages, p)
	return p, nil
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return nil
}

func (s *fakeSession) disconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

func (s *fakeSession) openedPages() []*fakePage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakePage(nil), s.pages...)
}

// fakePage serves scripted metric readings and documents. It dispatches on
// the script constants the scraper package evaluates.
type fakePage struct {
	mu sync.Mutex

	// metric returns the reading for the i-th (0-based) measurement.
	metric func(i int) int
	// readErrs fails the measurement with the given 0-based index.
	readErrs map[int]error
	// closeAtRead closes the page when measurement n (1-based) is attempted.
	closeAtRead int
	// stuck blocks measurements, ignoring ctx, until it is closed.
	stuck chan struct{}

	nodesUnavailable bool
	locateErr        error
	panicOnLocate    bool

	html       string
	htmlErr    error
	rootMarkup string

	navErr   error
	navBlock bool

	title string
	url   string

	reads        int
	scrolls      int
	scrollArgs   []any
	htmlCalls    int
	markupCalls  int
	closes       int
	closed       bool
	locateMarker string
	unmarked     bool
	viewport     [2]int
	identity     engine.Identity

	// trace records navigation and page-shaping scripts in call order.
	trace []string
}

func newFakePage(metric func(int) int) *fakePage {
	return &fakePage{
		metric: metric,
		html:   "<html><body>" + strings.Repeat("<div>item</div>", 40) + "</body></html>",
		title:  "Feed",
		url:    "https://example.com/feed?page=final",
	}
}

// seq yields vals in order and then repeats the last one.
func seq(vals ...int) func(int) int {
	return func(i int) int {
		if i < len(vals) {
			return vals[i]
		}
		return vals[len(vals)-1]
	}
}

func constant(v int) func(int) int { return func(int) int { return v } }

// growing never stabilises.
func growing(i int) int { return 100 + 10*i }

func (p *fakePage) SetViewport(ctx context.Context, width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = [2]int{width, height}
	return nil
}

func (p *fakePage) SetIdentity(ctx context.Context, id engine.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = id
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string, wait engine.WaitCondition) error {
	p.mu.Lock()
	p.trace = append(p.trace, "navigate")
	p.mu.Unlock()
	if p.navBlock {
		<-ctx.Done()
		return fmt.Errorf("navigate: %w", ctx.Err())
	}
	return p.navErr
}

func (p *fakePage) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	if js == nodeCountJS || js == heightJS {
		return p.measure(ctx, js)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return gson.JSON{}, fmt.Errorf("eval: %w", engine.ErrPageClosed)
	}
	switch js {
	case scrollJS:
		p.scrolls++
		p.scrollArgs = args
		return gson.New(true), nil
	case removeOverlaysJS:
		p.trace = append(p.trace, "overlays")
		return gson.New(2), nil
	case locateJS:
		p.trace = append(p.trace, "locate")
		if p.panicOnLocate {
			panic("locate exploded")
		}
		if p.locateErr != nil {
			return gson.JSON{}, p.locateErr
		}
		p.locateMarker, _ = args[1].(string)
		return gson.New(map[string]any{"root": false, "slack": 4000, "tag": "main"}), nil
	case unmarkJS:
		p.unmarked = true
		return gson.New(true), nil
	case rootMarkupJS:
		p.markupCalls++
		return gson.New(p.rootMarkup), nil
	default:
		return gson.New(0), nil
	}
}

func (p *fakePage) measure(ctx context.Context, js string) (gson.JSON, error) {
	if p.stuck != nil {
		<-p.stuck
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return gson.JSON{}, fmt.Errorf("eval: %w", engine.ErrPageClosed)
	}
	if p.closeAtRead > 0 && p.reads+1 >= p.closeAtRead {
		p.closed = true
		return gson.JSON{}, fmt.Errorf("eval: %w", engine.ErrPageClosed)
	}
	if js == nodeCountJS && p.nodesUnavailable {
		return gson.New(-1), nil
	}

	i := p.reads
	p.reads++
	if err := p.readErrs[i]; err != nil {
		return gson.JSON{}, err
	}
	return gson.New(p.metric(i)), nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.htmlCalls++
	if p.closed {
		return "", fmt.Errorf("html: %w", engine.ErrPageClosed)
	}
	return p.html, p.htmlErr
}

func (p *fakePage) Info(ctx context.Context) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", "", engine.ErrPageClosed
	}
	return p.title, p.url, nil
}

func (p *fakePage) Closed(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	p.closed = true
	return nil
}

func (p *fakePage) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.trace...)
}

func (p *fakePage) readCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

func (p *fakePage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// closeTimeout bounds Page.Close, which runs on cleanup paths after the
// job context may already have expired.
const closeTimeout = 5 * time.Second

// RodConnector dials a remote Chrome DevTools endpoint with go-rod.
// It never launches a local browser.
type RodConnector struct{}

// NewRodConnector creates a RodConnector.
func NewRodConnector() *RodConnector {
	return &RodConnector{}
}

// Connect dials endpoint and attaches a rod.Browser to the websocket.
//
// endpoint may be a bare "host:port", an http(s) DevTools address (resolved
// through /json/version) or a ready-made ws(s) URL, which is used as-is so
// hosted browser services with token query strings keep working.
func (c *RodConnector) Connect(ctx context.Context, endpoint string) (Session, error) {
	wsURL, err := resolveEndpoint(endpoint)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", endpoint, err)
	}

	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		return nil, fmt.Errorf("dial %s: %w", Redact(wsURL), err)
	}

	browser := rod.New().Client(cdp.New().Start(ws)).NoDefaultDevice()

	// Browser.Connect runs on the background context so the event bus
	// outlives this call; closing the socket unblocks it if ctx ends first.
	done := make(chan error, 1)
	go func() { done <- browser.Connect() }()

	select {
	case err := <-done:
		if err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("attach to browser: %w", err)
		}
	case <-ctx.Done():
		_ = ws.Close()
		<-done
		return nil, ctx.Err()
	}

	return &rodSession{browser: browser, ws: ws}, nil
}

func resolveEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if u, err := url.Parse(endpoint); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		if (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
			return endpoint, nil
		}
	}
	return launcher.ResolveURL(endpoint)
}

// Redact strips credentials and query strings, which often carry access tokens.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

type rodSession struct {
	browser *rod.Browser
	ws      *cdp.WebSocket
	once    sync.Once
}

func (s *rodSession) Alive(ctx context.Context) bool {
	res, err := proto.BrowserGetVersion{}.Call(s.browser.Context(ctx))
	return err == nil && res != nil && res.Product != ""
}

func (s *rodSession) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, classify(err)
	}

	rp := &rodPage{page: page, browser: s.browser}

	if opts.Stealth {
		if _, err := page.Context(ctx).EvalOnNewDocument(stealth.JS); err != nil {
			_ = rp.Close()
			return nil, fmt.Errorf("inject stealth script: %w", classify(err))
		}
	}

	rp.router = setupHijack(page, opts.BlockedResourceTypes, opts.BlockAds)
	return rp, nil
}

// Disconnect closes the websocket. Unlike rod.Browser.Close it does not send
// Browser.close, so a shared remote browser keeps serving other jobs.
func (s *rodSession) Disconnect() error {
	var err error
	s.once.Do(func() { err = s.ws.Close() })
	return err
}

type rodPage struct {
	page    *rod.Page
	browser *rod.Browser
	router  *rod.HijackRouter

	mu     sync.Mutex
	closed bool
}

func (p *rodPage) SetViewport(ctx context.Context, width, height int) error {
	err := p.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
	return classify(err)
}

func (p *rodPage) SetIdentity(ctx context.Context, id Identity) error {
	pc := p.page.Context(ctx)
	if id.UserAgent != "" {
		if err := pc.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: id.UserAgent}); err != nil {
			return classify(err)
		}
	}
	if len(id.Headers) > 0 {
		err := proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(id.Headers)}.Call(pc)
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

func (p *rodPage) Navigate(ctx context.Context, target string, wait WaitCondition) error {
	pc := p.page.Context(ctx)
	if err := pc.Navigate(target); err != nil {
		return classify(err)
	}

	switch wait {
	case WaitNone:
		return nil
	case WaitDOMStable:
		return classify(pc.WaitDOMStable(300*time.Millisecond, 0.1))
	default:
		return classify(pc.WaitLoad())
	}
}

func (p *rodPage) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, classify(err)
	}
	return res.Value, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	return html, classify(err)
}

func (p *rodPage) Info(ctx context.Context) (string, string, error) {
	res, err := proto.TargetGetTargetInfo{TargetID: p.page.TargetID}.Call(p.browser.Context(ctx))
	if err != nil {
		return "", "", classify(err)
	}
	return res.TargetInfo.Title, res.TargetInfo.URL, nil
}

func (p *rodPage) Closed(ctx context.Context) bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return true
	}

	_, err := proto.TargetGetTargetInfo{TargetID: p.page.TargetID}.Call(p.browser.Context(ctx))
	if err == nil {
		return false
	}
	// Our own deadline says nothing about the page.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (p *rodPage) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.router != nil {
		_ = p.router.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return classify(p.page.Context(ctx).Close())
}

// classify wraps errors that mean the target or its session is gone with
// ErrPageClosed. Other errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isDetached(err) {
		return fmt.Errorf("%w: %v", ErrPageClosed, err)
	}
	return err
}

func isDetached(err error) bool {
	var notFound *rod.PageNotFoundError
	switch {
	case errors.As(err, &notFound),
		errors.Is(err, cdp.ErrSessionNotFound),
		errors.Is(err, cdp.ErrNotAttachedToActivePage),
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed):
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Target closed") ||
		strings.Contains(msg, "No target with given id") ||
		strings.Contains(msg, "use of closed network connection")
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

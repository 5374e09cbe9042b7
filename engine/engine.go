// Package engine defines the remote browser capability the scraper drives,
// and a go-rod implementation of it.
//
// Everything the scraper needs from a browser goes through these three
// interfaces. Values cross the boundary as JSON (gson.JSON), never as live
// references into the page, so any CDP backend can sit behind them.
package engine

import (
	"context"
	"errors"

	"github.com/ysmood/gson"
)

// ErrPageClosed reports that the page or its session is gone. Page methods
// wrap it so callers can test with errors.Is.
var ErrPageClosed = errors.New("page closed or detached")

// WaitCondition selects what Navigate waits for after the load starts.
type WaitCondition string

const (
	WaitLoad      WaitCondition = "load"
	WaitDOMStable WaitCondition = "dom_stable"
	WaitNone      WaitCondition = "none"
)

// Connector opens control channels to a remote browser host.
type Connector interface {
	Connect(ctx context.Context, endpoint string) (Session, error)
}

// Session is a control channel to one remote browser instance.
type Session interface {
	// Alive reports whether the remote browser answers on this channel.
	Alive(ctx context.Context) bool

	// NewPage opens a fresh navigation context.
	NewPage(ctx context.Context, opts PageOptions) (Page, error)

	// Disconnect closes the control channel. The remote browser keeps running.
	Disconnect() error
}

// PageOptions are applied when a page is created, before any navigation.
type PageOptions struct {
	// Stealth injects anti-detection scripts into every new document.
	Stealth bool

	// BlockedResourceTypes lists resource types to fail at the network
	// layer, e.g. "Image", "Font", "Media".
	BlockedResourceTypes []string

	// BlockAds fails requests to well-known ad and tracking hosts. Ad slots
	// that refill forever keep the growth metric moving.
	BlockAds bool
}

// Identity is the client identity presented by a page.
type Identity struct {
	UserAgent string
	Headers   map[string]string
}

// Page is one navigation context inside a Session.
type Page interface {
	SetViewport(ctx context.Context, width, height int) error
	SetIdentity(ctx context.Context, id Identity) error

	// Navigate loads url and blocks until the wait condition holds or ctx ends.
	Navigate(ctx context.Context, url string, wait WaitCondition) error

	// Eval runs js (a function expression) in the page with the given
	// JSON-serialisable arguments and returns its JSON result.
	Eval(ctx context.Context, js string, args ...any) (gson.JSON, error)

	// HTML returns the serialised document.
	HTML(ctx context.Context) (string, error)

	// Info returns the page title and current URL.
	Info(ctx context.Context) (title, url string, err error)

	// Closed reports whether the page can no longer be used.
	Closed(ctx context.Context) bool

	Close() error
}

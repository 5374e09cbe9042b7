package models

// Viewport is the emulated browser window size.
type Viewport struct {
	Width  int `json:"width" binding:"omitempty,min=200,max=4096"`
	Height int `json:"height" binding:"omitempty,min=200,max=8192"`
}

// ScrapeRequest is the payload for POST /api/v1/scrape.
//
// Zero-valued tuning fields are filled from the server configuration, so a
// request carrying only a URL is valid.
type ScrapeRequest struct {
	// URL is the target page to materialise. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxScrolls is the maximum number of scroll attempts.
	MaxScrolls int `json:"max_scrolls,omitempty" binding:"omitempty,min=1,max=200"`

	// ScrollDelayMs is how long each scroll attempt observes the page
	// before scrolling again.
	ScrollDelayMs int `json:"scroll_delay_ms,omitempty" binding:"omitempty,min=0,max=60000"`

	// IdleStableMs is how long the growth metric must stay unchanged
	// before the page counts as fully loaded.
	IdleStableMs int `json:"idle_stable_ms,omitempty" binding:"omitempty,min=0,max=60000"`

	// PollIntervalMs is the growth metric sampling interval.
	PollIntervalMs int `json:"poll_interval_ms,omitempty" binding:"omitempty,min=10,max=10000"`

	// Timeout is the overall convergence deadline in seconds.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`

	// NavigationTimeout bounds the initial page load in seconds.
	NavigationTimeout int `json:"navigation_timeout,omitempty" binding:"omitempty,min=1,max=120"`

	Viewport *Viewport `json:"viewport,omitempty"`

	// Metric selects the growth signal: "nodes" (descendant count of the
	// scroll target) or "height" (scrollable pixel height).
	Metric string `json:"metric,omitempty" binding:"omitempty,oneof=nodes height"`

	// WaitUntil is the navigation wait condition.
	WaitUntil string `json:"wait_until,omitempty" binding:"omitempty,oneof=load dom_stable none"`

	UserAgent string            `json:"user_agent,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`

	// Stealth enables anti-bot-detection evasions.
	Stealth bool `json:"stealth,omitempty"`

	// BlockResources blocks images, fonts and media while scrolling.
	BlockResources bool `json:"block_resources,omitempty"`

	// BlockAds fails requests to well-known ad and tracking hosts.
	BlockAds bool `json:"block_ads,omitempty"`

	// RemoveOverlays strips cookie banners and fixed popups after load.
	RemoveOverlays bool `json:"remove_overlays,omitempty"`

	// LoadMoreSelector is clicked (when visible) before every scroll.
	LoadMoreSelector string `json:"load_more_selector,omitempty"`

	// Selector-based projection. When ItemSelector is set the response
	// carries one entry per matched item.
	ItemSelector  string `json:"item_selector,omitempty"`
	TitleSelector string `json:"title_selector,omitempty"`
	LinkSelector  string `json:"link_selector,omitempty"`

	// DedupeItems drops items repeated by virtualised lists.
	DedupeItems bool `json:"dedupe_items,omitempty"`

	// ExcludeSelectors are removed from the document before projection.
	ExcludeSelectors []string `json:"exclude_selectors,omitempty"`

	// CSSSelector narrows Content to the outer HTML of matching elements.
	CSSSelector string `json:"css_selector,omitempty"`

	// OutputFormat controls Content: "html" (default) or "markdown".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=html markdown"`

	// IncludeLinks adds every absolute link found in the final document.
	IncludeLinks bool `json:"include_links,omitempty"`

	// MaxAge enables the response cache: a cached response younger than
	// MaxAge milliseconds is returned instead of a fresh scrape.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset presentation fields.
// Scraping parameters are defaulted by the scraper from server config.
func (r *ScrapeRequest) Defaults() {
	if r.OutputFormat == "" {
		r.OutputFormat = "html"
	}
	if r.WaitUntil == "" {
		r.WaitUntil = "load"
	}
}

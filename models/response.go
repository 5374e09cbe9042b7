package models

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success is true for every completed job, including degraded ones.
	Success bool `json:"success"`

	// Content is the final document in the requested format.
	Content string `json:"content"`

	// Items is populated when the request carried an item_selector.
	Items []Item `json:"items,omitempty"`

	// Links is populated when the request set include_links.
	Links []Link `json:"links,omitempty"`

	Metadata    Metadata        `json:"metadata"`
	Convergence ConvergenceInfo `json:"convergence"`

	// Settings echoes the effective job settings after defaults.
	Settings Settings `json:"settings"`

	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// Item is one selector-matched entry of a feed.
type Item struct {
	Title string `json:"title,omitempty"`
	Link  string `json:"link,omitempty"`
	HTML  string `json:"html,omitempty"`
}

// Link represents a hyperlink extracted from the page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// Metadata holds page-level information collected during the job.
type Metadata struct {
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
	FinalURL  string `json:"final_url,omitempty"`
}

// ConvergenceInfo reports how the page reached its final state.
type ConvergenceInfo struct {
	// Converged is true when the growth metric held still for the full idle window.
	Converged bool `json:"converged"`

	// TimedOut is true when the overall deadline ended detection.
	TimedOut bool `json:"timed_out"`

	// Outcome is one of "stable", "exhausted", "timed_out", "detached".
	Outcome string `json:"outcome"`

	Attempts    int    `json:"attempts"`
	FinalMetric int    `json:"final_metric"`
	Metric      string `json:"metric"`

	// Extraction names the method that produced the document:
	// "document", "root_markup", "page_closed" or "failed".
	Extraction string `json:"extraction"`
}

// Settings are the effective job parameters after defaults and clamping.
type Settings struct {
	MaxScrolls       int    `json:"max_scrolls"`
	ScrollDelayMs    int64  `json:"scroll_delay_ms"`
	IdleStableMs     int64  `json:"idle_stable_ms"`
	PollIntervalMs   int64  `json:"poll_interval_ms"`
	TimeoutMs        int64  `json:"timeout_ms"`
	NavigationMs     int64  `json:"navigation_timeout_ms"`
	ViewportWidth    int    `json:"viewport_width"`
	ViewportHeight   int    `json:"viewport_height"`
	Metric           string `json:"metric"`
	WaitUntil        string `json:"wait_until"`
	Stealth          bool   `json:"stealth"`
	BlockResources   bool   `json:"block_resources"`
	BlockAds         bool   `json:"block_ads"`
	RemoveOverlays   bool   `json:"remove_overlays"`
	LoadMoreSelector string `json:"load_more_selector,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// NavigationMs is the time spent connecting and loading the page.
	NavigationMs int64 `json:"navigation_ms"`

	// ConvergenceMs is the time spent scrolling until the page settled.
	ConvergenceMs int64 `json:"convergence_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	ActiveJobs int    `json:"active_jobs"`
	RemoteURL  string `json:"remote_url"`
	Version    string `json:"version"`

	// Browser is "reachable" or "unreachable" when a browser check was
	// requested with ?check_browser=true.
	Browser string `json:"browser,omitempty"`
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how jobs reach the remote browser host.
type BrowserConfig struct {
	// RemoteURL is the DevTools address of the remote browser host.
	// Accepts "host:9222", "http://host:9222" or a full "ws://" endpoint.
	RemoteURL string // default: "ws://127.0.0.1:3000"

	// ConnectRetries is the number of connection attempts per job.
	ConnectRetries int // default: 3

	// ConnectBaseDelay is the first backoff delay; it doubles per attempt.
	ConnectBaseDelay time.Duration // default: 1s

	// UserAgent overrides the remote browser's user agent when set.
	UserAgent string

	// BlockedResourceTypes lists resource types to block when a job asks for it.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// ScraperConfig holds per-job defaults and hard limits.
type ScraperConfig struct {
	// MaxScrolls is the default number of scroll attempts.
	MaxScrolls int // default: 10

	// ScrollDelay is the observation window after each scroll.
	ScrollDelay time.Duration // default: 2s

	// IdleStable is how long the growth metric must stay unchanged.
	IdleStable time.Duration // default: 3s

	// PollInterval is the growth metric sampling interval.
	PollInterval time.Duration // default: 500ms

	// DefaultTimeout is the default overall convergence deadline.
	DefaultTimeout time.Duration // default: 60s

	// MaxTimeout is the maximum overall deadline a client may ask for.
	MaxTimeout time.Duration // default: 180s

	// NavigationTimeout bounds page navigation alone.
	NavigationTimeout time.Duration // default: 30s

	// SettleDelay is the pause between convergence and extraction.
	SettleDelay time.Duration // default: 1s

	// ExtractRetries is the number of extraction attempts.
	ExtractRetries int // default: 3

	// ExtractMinLength is the shortest document treated as plausible.
	ExtractMinLength int // default: 100

	// ExtractBackoff is multiplied by the attempt number between extraction attempts.
	ExtractBackoff time.Duration // default: 500ms

	// Metric selects the default growth metric: "nodes" or "height".
	Metric string // default: "nodes"

	// ViewportWidth and ViewportHeight size the page when the job does not.
	ViewportWidth  int // default: 1280
	ViewportHeight int // default: 800
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the scrape response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 500

	// TTL is how long a cached response is kept at most.
	TTL time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SCROLLSETTLE_HOST", "0.0.0.0"),
			Port: envIntOr("SCROLLSETTLE_PORT", 8080),
			Mode: envOr("SCROLLSETTLE_MODE", "release"),
		},
		Browser: BrowserConfig{
			RemoteURL:        envOr("SCROLLSETTLE_BROWSER_URL", "ws://127.0.0.1:3000"),
			ConnectRetries:   envIntOr("SCROLLSETTLE_CONNECT_RETRIES", 3),
			ConnectBaseDelay: envDurationOr("SCROLLSETTLE_CONNECT_BASE_DELAY", time.Second),
			UserAgent:        os.Getenv("SCROLLSETTLE_USER_AGENT"),
			BlockedResourceTypes: envSliceOr("SCROLLSETTLE_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Scraper: ScraperConfig{
			MaxScrolls:        envIntOr("SCROLLSETTLE_MAX_SCROLLS", 10),
			ScrollDelay:       envDurationOr("SCROLLSETTLE_SCROLL_DELAY", 2*time.Second),
			IdleStable:        envDurationOr("SCROLLSETTLE_IDLE_STABLE", 3*time.Second),
			PollInterval:      envDurationOr("SCROLLSETTLE_POLL_INTERVAL", 500*time.Millisecond),
			DefaultTimeout:    envDurationOr("SCROLLSETTLE_DEFAULT_TIMEOUT", 60*time.Second),
			MaxTimeout:        envDurationOr("SCROLLSETTLE_MAX_TIMEOUT", 180*time.Second),
			NavigationTimeout: envDurationOr("SCROLLSETTLE_NAV_TIMEOUT", 30*time.Second),
			SettleDelay:       envDurationOr("SCROLLSETTLE_SETTLE_DELAY", time.Second),
			ExtractRetries:    envIntOr("SCROLLSETTLE_EXTRACT_RETRIES", 3),
			ExtractMinLength:  envIntOr("SCROLLSETTLE_EXTRACT_MIN_LENGTH", 100),
			ExtractBackoff:    envDurationOr("SCROLLSETTLE_EXTRACT_BACKOFF", 500*time.Millisecond),
			Metric:            envOr("SCROLLSETTLE_METRIC", "nodes"),
			ViewportWidth:     envIntOr("SCROLLSETTLE_VIEWPORT_WIDTH", 1280),
			ViewportHeight:    envIntOr("SCROLLSETTLE_VIEWPORT_HEIGHT", 800),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SCROLLSETTLE_AUTH_ENABLED", false),
			APIKeys: envSliceOr("SCROLLSETTLE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SCROLLSETTLE_RATE_RPS", 2.0),
			Burst:             envIntOr("SCROLLSETTLE_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SCROLLSETTLE_CACHE_MAX_ENTRIES", 500),
			TTL:        envDurationOr("SCROLLSETTLE_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("SCROLLSETTLE_LOG_LEVEL", "info"),
			Format: envOr("SCROLLSETTLE_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

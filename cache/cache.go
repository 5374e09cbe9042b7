package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/use-agent/scrollsettle/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  models.ScrapeResponse
	createdAt time.Time
}

// Cache is an in-memory cache of scrape responses. It is safe for
// concurrent use. Responses are copied in and out, so callers may modify
// what Get returns.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a Cache holding at most maxEntries responses. A background
// goroutine evicts entries older than ttl every ttl/12 until Close.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key derives a cache key from the target URL and everything else that
// shapes the response: the effective job settings and the projection
// parameters. Two requests share a key only if they would produce the same
// response from the same page state.
func Key(url string, settings models.Settings, projection any) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	enc := json.NewEncoder(h)
	_ = enc.Encode(settings)
	_ = enc.Encode(projection)
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ScrapeResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if time.Since(e.createdAt) > maxAge {
		return nil, false
	}

	resp := e.response
	return &resp, true
}

// Set stores a copy of resp. At capacity the oldest entry is evicted.
func (c *Cache) Set(key string, resp *models.ScrapeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.store[key] = &entry{
		response:  *resp,
		createdAt: time.Now(),
	}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the background eviction loop.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.store {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	delete(c.store, oldestKey)
}

// evictExpired removes entries created before now - ttl.
func (c *Cache) evictExpired(now time.Time) {
	cutoff := now.Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) cleanupLoop() {
	interval := c.ttl / 12
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.evictExpired(now)
		case <-c.stop:
			return
		}
	}
}

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrollsettle/config"
	"github.com/use-agent/scrollsettle/models"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused limiter is kept.
const limiterIdleTTL = time.Hour

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per identity.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &limiterStore{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
	}
}

func (s *limiterStore) get(identity string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.limiters[identity]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[identity] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// evictIdle drops limiters not used since now - limiterIdleTTL.
func (s *limiterStore) evictIdle(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, id)
		}
	}
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate. A scroll job holds a remote
// browser session for up to its whole timeout, so the default budget is low.
//
// A non-positive RequestsPerSecond disables limiting.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := newLimiterStore(cfg)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for now := range ticker.C {
			store.evictIdle(now)
		}
	}()

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString(APIKeyContextKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		limiter := store.get(identity, time.Now())
		if !limiter.Allow() {
			retry := math.Ceil(1 / cfg.RequestsPerSecond)
			c.Header("Retry-After", strconv.Itoa(int(retry)))
			abortWithError(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down")
			return
		}

		c.Next()
	}
}

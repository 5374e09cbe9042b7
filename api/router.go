package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrollsettle/api/handler"
	"github.com/use-agent/scrollsettle/api/middleware"
	"github.com/use-agent/scrollsettle/cache"
	"github.com/use-agent/scrollsettle/cleaner"
	"github.com/use-agent/scrollsettle/config"
	"github.com/use-agent/scrollsettle/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(sc *scraper.Scraper, cl *cleaner.Cleaner, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(sc, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scrape", handler.Scrape(sc, cl, cc))

	return r
}

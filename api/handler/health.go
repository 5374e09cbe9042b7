package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrollsettle/models"
	"github.com/use-agent/scrollsettle/scraper"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// browserCheckTimeout bounds the optional remote browser check.
const browserCheckTimeout = 5 * time.Second

// Health returns a handler for GET /api/v1/health.
//
// With ?check_browser=true it also opens and releases one session to the
// remote browser, and reports "degraded" when that fails.
func Health(sc *scraper.Scraper, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:     "healthy",
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			ActiveJobs: sc.ActiveJobs(),
			RemoteURL:  sc.RemoteURL(),
			Version:    Version,
		}

		if c.Query("check_browser") == "true" {
			ctx, cancel := context.WithTimeout(c.Request.Context(), browserCheckTimeout)
			defer cancel()
			if err := sc.Ping(ctx); err != nil {
				resp.Status = "degraded"
				resp.Browser = "unreachable"
			} else {
				resp.Browser = "reachable"
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

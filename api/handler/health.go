package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitegrade/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatsSource reports browser utilisation. scraper.Scraper satisfies it.
type StatsSource interface {
	Stats() models.BrowserStats
}

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when more than 80% of browser contexts are active.
// A nil source means no browser is in use.
func Health(src StatsSource, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.BrowserStats
		if src != nil {
			stats = src.Stats()
		}

		status := "healthy"
		if stats.MaxContexts > 0 && stats.ActiveContexts > int(float64(stats.MaxContexts)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			BrowserStats: stats,
			Version:      Version,
		})
	}
}

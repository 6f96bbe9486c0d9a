// Package api exposes the analysis service over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/sitegrade/api/handler"
	"github.com/use-agent/sitegrade/api/middleware"
	"github.com/use-agent/sitegrade/config"
	"github.com/use-agent/sitegrade/metrics"
	"github.com/use-agent/sitegrade/pipeline"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Service *pipeline.Service

	// Browser reports renderer utilisation on /health. Nil when the
	// configured render mode never launches a browser.
	Browser handler.StatsSource

	// Analyses enables the history endpoints when set.
	Analyses handler.AnalysisReader

	// Gatherer enables GET /metrics when set.
	Gatherer prometheus.Gatherer

	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Identity → RateLimit
//
// Health and metrics sit outside the identity middleware so probes and
// scrapers always work.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(deps.Browser, deps.StartTime))

	protected := v1.Group("")
	protected.Use(middleware.Identity(cfg.Auth.APIKeys))
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/analyze", handler.Analyze(deps.Service))
	protected.GET("/quota", handler.Quota(deps.Service.Tracker()))

	if deps.Analyses != nil {
		protected.GET("/analyses", handler.ListAnalyses(deps.Analyses))
		protected.GET("/analyses/:id", handler.GetAnalysis(deps.Analyses))
	}

	return r
}

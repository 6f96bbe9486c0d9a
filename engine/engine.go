// Package engine defines the page rendering engines and the dispatcher that
// races them.
package engine

import (
	"context"
	"fmt"

	"github.com/use-agent/sitegrade/config"
	"github.com/use-agent/sitegrade/models"
)

// Engine is the interface that all rendering engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "browser",
	// "browser-stealth").
	Name() string

	// Render loads the page and returns its document and telemetry.
	// Errors are *models.AnalysisError values.
	Render(ctx context.Context, req *models.RenderRequest) (*models.RenderedPage, error)
}

// Renderer is anything that can render a page. *scraper.Scraper satisfies
// it; it is declared here to avoid an import cycle.
type Renderer interface {
	Render(ctx context.Context, req *models.RenderRequest) (*models.RenderedPage, error)
}

// Mode names accepted by New.
const (
	ModeBrowser = "browser"
	ModeHTTP    = "http"
	ModeAuto    = "auto"
)

// New builds the engine selected by cfg.Mode. browser is the shared
// browser renderer; it may be nil in "http" mode.
func New(cfg config.RenderConfig, browser Renderer) (Engine, error) {
	switch cfg.Mode {
	case ModeBrowser, "":
		return NewRodEngine(browser, cfg.Stealth), nil
	case ModeHTTP:
		return NewHTTPEngine(cfg.HTTPTimeout), nil
	case ModeAuto:
		engines := []Engine{
			NewHTTPEngine(cfg.HTTPTimeout),
			NewRodEngine(browser, false),
			NewRodEngine(browser, true),
		}
		return NewDispatcher(engines, cfg.EscalationDelays, NewDomainMemory(DefaultDomainMemoryTTL)), nil
	default:
		return nil, fmt.Errorf("unknown render mode %q (want %s, %s or %s)", cfg.Mode, ModeBrowser, ModeHTTP, ModeAuto)
	}
}

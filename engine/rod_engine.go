package engine

import (
	"context"

	"github.com/use-agent/sitegrade/models"
)

// RodEngine renders pages through the shared headless browser. The
// forceStealth flag distinguishes the plain browser engine from the
// stealth one.
type RodEngine struct {
	renderer     Renderer
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine.
//   - renderer: the browser renderer (usually *scraper.Scraper).
//   - forceStealth: when true, every request is rendered with stealth on.
func NewRodEngine(renderer Renderer, forceStealth bool) *RodEngine {
	name := "browser"
	if forceStealth {
		name = "browser-stealth"
	}
	return &RodEngine{
		renderer:     renderer,
		forceStealth: forceStealth,
		name:         name,
	}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Render(ctx context.Context, req *models.RenderRequest) (*models.RenderedPage, error) {
	if e.renderer == nil {
		return nil, models.NewAnalysisError(models.ErrCodeBrowserCrash, e.name+": no browser configured", nil)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	page, err := e.renderer.Render(ctx, &r)
	if err != nil {
		return nil, err
	}
	page.Engine = e.name
	return page, nil
}

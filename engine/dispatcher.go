package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/sitegrade/models"
)

// Dispatcher coordinates multi-engine racing with staged escalation.
// It starts the fastest engine first and progressively escalates to heavier
// engines if earlier ones fail or time out. Dispatcher is itself an Engine.
type Dispatcher struct {
	engines          []Engine
	escalationDelays []time.Duration
	memory           *DomainMemory
}

// NewDispatcher creates a Dispatcher with the given engines, ordered from
// lightest to heaviest. engines[i] starts escalationDelays[i] after the
// race begins; missing delays are zero.
func NewDispatcher(engines []Engine, escalationDelays []time.Duration, memory *DomainMemory) *Dispatcher {
	delays := make([]time.Duration, len(engines))
	copy(delays, escalationDelays)
	if memory == nil {
		memory = NewDomainMemory(DefaultDomainMemoryTTL)
	}
	return &Dispatcher{
		engines:          engines,
		escalationDelays: delays,
		memory:           memory,
	}
}

func (d *Dispatcher) Name() string { return ModeAuto }

// Render runs the race for req and returns the first successful page.
//
// A page with a 4xx/5xx status is a soft result: the race keeps going in
// case a heavier engine gets through, and the soft page is returned only
// if nothing better arrives. When every engine fails, the error from the
// heaviest engine that ran is returned.
func (d *Dispatcher) Render(ctx context.Context, req *models.RenderRequest) (*models.RenderedPage, error) {
	if len(d.engines) == 0 {
		return nil, models.NewAnalysisError(models.ErrCodeInternal, "no rendering engines configured", nil)
	}
	host := hostOf(req.URL)

	if remembered := d.memory.Get(host); remembered != "" {
		for _, eng := range d.engines {
			if eng.Name() != remembered {
				continue
			}
			slog.Debug("domain memory hit", "host", host, "engine", remembered)
			page, err := eng.Render(ctx, req)
			if err == nil && page.StatusCode < 400 {
				return page, nil
			}
			if ctx.Err() != nil {
				return page, err
			}
			slog.Info("remembered engine failed, running full race",
				"host", host, "engine", remembered, "error", err)
			d.memory.Delete(host)
			break
		}
	}

	return d.race(ctx, req, host)
}

// race runs all engines with staged delays and returns the first success.
func (d *Dispatcher) race(ctx context.Context, req *models.RenderRequest, host string) (*models.RenderedPage, error) {
	type raceResult struct {
		index int
		page  *models.RenderedPage
		err   error
	}

	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	results := make(chan raceResult, len(d.engines))
	var wg sync.WaitGroup

	for i, eng := range d.engines {
		wg.Add(1)
		go func(i int, e Engine, delay time.Duration) {
			defer wg.Done()

			if delay > 0 {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-raceCtx.Done():
					return
				case <-timer.C:
				}
			}
			if raceCtx.Err() != nil {
				return
			}

			slog.Debug("engine starting", "engine", e.Name(), "url", req.URL)
			page, err := e.Render(raceCtx, req)
			if err != nil {
				slog.Debug("engine failed", "engine", e.Name(), "url", req.URL, "error", err)
			}
			results <- raceResult{index: i, page: page, err: err}
		}(i, eng, d.escalationDelays[i])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		soft     *models.RenderedPage
		softIdx  = -1
		lastErr  error
		errIndex = -1
	)
	for rr := range results {
		switch {
		case rr.err != nil:
			if rr.index > errIndex {
				lastErr, errIndex = rr.err, rr.index
			}
		case rr.page.StatusCode >= 400:
			if rr.index > softIdx {
				soft, softIdx = rr.page, rr.index
			}
		default:
			// First success wins; cancel all other engines.
			raceCancel()
			slog.Info("engine won race", "engine", rr.page.Engine, "url", req.URL)
			d.memory.Set(host, d.engines[rr.index].Name())
			return rr.page, nil
		}
	}

	if soft != nil {
		return soft, nil
	}
	if err := ctx.Err(); err != nil {
		code, msg := models.ErrCodeTimeout, "the page took too long to load"
		if errors.Is(err, context.Canceled) {
			code, msg = models.ErrCodeCancelled, "the analysis was cancelled"
		}
		return nil, models.NewAnalysisError(code, msg, err)
	}
	if lastErr == nil {
		lastErr = models.NewAnalysisError(models.ErrCodeNavigation, "all rendering engines failed", nil)
	}
	return nil, lastErr
}

// hostOf returns the lower-cased hostname of rawURL, or rawURL itself
// when it cannot be parsed.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

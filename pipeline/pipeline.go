// Package pipeline runs one website analysis end to end: quota
// reservation, rendering, extraction, scoring and the result sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/sitegrade/analyzer"
	"github.com/use-agent/sitegrade/cache"
	"github.com/use-agent/sitegrade/extractor"
	"github.com/use-agent/sitegrade/metrics"
	"github.com/use-agent/sitegrade/models"
	"github.com/use-agent/sitegrade/quota"
	"github.com/use-agent/sitegrade/webhook"
	"golang.org/x/sync/errgroup"
)

// sinkTimeout bounds each best-effort write after an analysis succeeds.
const sinkTimeout = 5 * time.Second

// Renderer turns a URL into a rendered page. engine.Engine satisfies it.
type Renderer interface {
	Name() string
	Render(ctx context.Context, req *models.RenderRequest) (*models.RenderedPage, error)
}

// ResultStore persists completed analyses.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, identifier string, result *models.AnalysisResult) error
}

// Notifier publishes completion events.
type Notifier interface {
	Notify(event *webhook.Event)
}

// Analysis is a successful RunAnalysis outcome.
type Analysis struct {
	Result *models.AnalysisResult

	// Quota is the caller's allowance as observed before this analysis.
	Quota models.QuotaStatus

	Timing models.TimingInfo

	// CacheStatus is "hit", "miss", or empty when caching is disabled.
	CacheStatus string
}

// Service runs analyses. It is safe for concurrent use.
type Service struct {
	renderer Renderer
	tracker  *quota.Tracker
	seo      *analyzer.SEOAnalyzer
	ai       *analyzer.AIAnalyzer

	cache    *cache.Cache
	results  ResultStore
	notifier Notifier
	metrics  *metrics.Metrics

	renderTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache serves repeat renders of a URL from c.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithResultStore persists every completed analysis.
func WithResultStore(r ResultStore) Option {
	return func(s *Service) { s.results = r }
}

// WithNotifier publishes an analysis.completed event per analysis.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRenderTimeout sets the hard deadline for the render step.
func WithRenderTimeout(d time.Duration) Option {
	return func(s *Service) { s.renderTimeout = d }
}

// WithClock overrides the time source used for result timestamps and
// the AI analyzer's notion of the current year.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a Service rendering with renderer and accounting
// usage on tracker.
func NewService(renderer Renderer, tracker *quota.Tracker, opts ...Option) *Service {
	s := &Service{
		renderer:      renderer,
		tracker:       tracker,
		seo:           analyzer.NewSEOAnalyzer(),
		renderTimeout: 30 * time.Second,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	s.ai = analyzer.NewAIAnalyzer(s.now)
	return s
}

// Tracker returns the quota tracker the service reserves against.
func (s *Service) Tracker() *quota.Tracker {
	return s.tracker
}

// RunAnalysis analyzes rawURL on behalf of identifier.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Validate           – bad URLs never touch quota or the renderer
//  2. Reserve quota      – atomic check-and-reserve
//  3. DEFER: rollback    – every failure below gives the slot back
//  4. Render             – cache or renderer, under the render deadline
//  5. Status check       – non-2xx final status is a failure
//  6. Analyze            – extract, then SEO and AI concurrently, then merge
//  7. Commit             – the slot is kept
//  8. Sinks              – result store and webhook, best-effort
//
// Errors are *models.AnalysisError or *models.QuotaExceededError.
func (s *Service) RunAnalysis(ctx context.Context, rawURL, identifier string, authenticated bool) (_ *Analysis, err error) {
	start := time.Now()
	s.metrics.AnalysesInFlight.Inc()
	defer s.metrics.AnalysesInFlight.Dec()
	defer func() {
		code := ""
		if err != nil {
			code = models.ErrorCode(err)
		}
		s.metrics.AnalysesTotal.WithLabelValues(metrics.Outcome(code)).Inc()
	}()

	// ── 1. Validate ───────────────────────────────────────────────────
	target, err := models.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	pageURL := target.String()
	log := s.logger.With("url", pageURL, "identifier", identifier)

	// ── 2. Reserve quota ──────────────────────────────────────────────
	reservation, status, err := s.tracker.CheckAndReserve(ctx, identifier, pageURL, authenticated)
	if err != nil {
		var qe *models.QuotaExceededError
		if errors.As(err, &qe) {
			s.metrics.QuotaDenialsTotal.Inc()
		}
		return nil, err
	}

	// ── 3. DEFER: rollback on failure ─────────────────────────────────
	defer func() {
		if err == nil {
			return
		}
		if rbErr := reservation.Rollback(ctx); rbErr != nil {
			log.Error("quota rollback failed", "error", rbErr)
		}
		var ae *models.AnalysisError
		if errors.As(err, &ae) && ae.IsRenderFailure() {
			s.metrics.RenderFailuresTotal.WithLabelValues(metrics.Outcome(ae.Code)).Inc()
			log.Warn("page could not be rendered", "code", ae.Code, "error", err)
			return
		}
		log.Info("analysis failed", "code", models.ErrorCode(err), "error", err)
	}()

	// ── 4. Render ─────────────────────────────────────────────────────
	renderStart := time.Now()
	page, cacheStatus, err := s.render(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	renderTime := time.Since(renderStart)

	// ── 5. Status check ───────────────────────────────────────────────
	if err := checkStatus(page.StatusCode); err != nil {
		return nil, err
	}

	// ── 6. Analyze ────────────────────────────────────────────────────
	analysisStart := time.Now()
	snap := extractor.Extract(page)

	var (
		seoReport models.SEOReport
		aiReport  models.AIReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		seoReport = s.seo.Analyze(snap)
		return gctx.Err()
	})
	g.Go(func() error {
		aiReport = s.ai.Analyze(snap)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, models.NewAnalysisError(models.ErrCodeCancelled, "the analysis was cancelled", err)
	}
	result := analyzer.Merge(pageURL, s.now(), seoReport, aiReport)

	// ── 7. Commit ─────────────────────────────────────────────────────
	reservation.Commit()

	// ── 8. Sinks ──────────────────────────────────────────────────────
	s.persist(ctx, identifier, result, log)
	s.notify(result)

	s.metrics.AnalysisDurationSeconds.Observe(time.Since(start).Seconds())
	log.Info("analysis completed",
		"id", result.ID,
		"overall", result.Scores.Overall,
		"engine", page.Engine,
		"cache", cacheStatus,
	)

	return &Analysis{
		Result: result,
		Quota:  status,
		Timing: models.TimingInfo{
			TotalMs:    time.Since(start).Milliseconds(),
			RenderMs:   renderTime.Milliseconds(),
			AnalysisMs: time.Since(analysisStart).Milliseconds(),
		},
		CacheStatus: cacheStatus,
	}, nil
}

// render returns the page from the cache when possible, otherwise renders
// it under the render deadline and caches successful renders.
func (s *Service) render(ctx context.Context, pageURL string) (*models.RenderedPage, string, error) {
	var key, cacheStatus string
	if s.cache != nil {
		key = cache.Key(pageURL, s.renderer.Name())
		if page, ok := s.cache.Get(key); ok {
			s.metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return page, "hit", nil
		}
		s.metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		cacheStatus = "miss"
	}

	if s.renderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.renderTimeout)
		defer cancel()
	}

	start := time.Now()
	page, err := s.renderer.Render(ctx, &models.RenderRequest{URL: pageURL, Timeout: s.renderTimeout})
	if err != nil {
		var ae *models.AnalysisError
		if !errors.As(err, &ae) {
			err = models.NewAnalysisError(models.ErrCodeInternal, "rendering failed unexpectedly", err)
		}
		return nil, cacheStatus, err
	}
	s.metrics.RenderDurationSeconds.WithLabelValues(page.Engine).Observe(time.Since(start).Seconds())

	if s.cache != nil && page.StatusCode >= 200 && page.StatusCode < 300 {
		s.cache.Set(key, page)
	}
	return page, cacheStatus, nil
}

// checkStatus rejects pages whose final response was not 2xx.
func checkStatus(code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if code == http.StatusNotFound || code == http.StatusGone {
		return models.NewAnalysisError(models.ErrCodeHTTPStatus,
			fmt.Sprintf("page not found (HTTP %d)", code), nil)
	}
	return models.NewAnalysisError(models.ErrCodeHTTPStatus,
		fmt.Sprintf("the page responded with HTTP %d", code), nil)
}

func (s *Service) persist(ctx context.Context, identifier string, result *models.AnalysisResult, log *slog.Logger) {
	if s.results == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if err := s.results.SaveAnalysis(ctx, identifier, result); err != nil {
		s.metrics.ResultSaveFailuresTotal.Inc()
		log.Error("failed to save analysis", "id", result.ID, "error", err)
	}
}

func (s *Service) notify(result *models.AnalysisResult) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(&webhook.Event{
		Type:      webhook.EventAnalysisCompleted,
		ID:        result.ID,
		Timestamp: result.Timestamp.Unix(),
		Data:      result,
	})
}

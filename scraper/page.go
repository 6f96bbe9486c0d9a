package scraper

import (
	"context"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/sitegrade/models"
	"github.com/ysmood/gson"
)

// Viewport used for every render.
const (
	viewportWidth  = 1366
	viewportHeight = 768
)

// EngineName identifies pages produced by the browser renderer.
const EngineName = "browser"

// telemetryJS collects the main-document status, final location and the
// bytes transferred for the document and every subresource. It must run
// before visibleTextJS, which mutates the DOM.
const telemetryJS = `() => {
	const out = { status: 0, bytes: 0, title: document.title || "", href: location.href };
	try {
		const nav = performance.getEntriesByType("navigation");
		if (nav.length > 0) {
			out.status = nav[0].responseStatus || 0;
			out.bytes += nav[0].transferSize || 0;
		}
		for (const r of performance.getEntriesByType("resource")) {
			out.bytes += r.transferSize || 0;
		}
	} catch (e) {}
	return out;
}`

const visibleTextJS = `() => {
	if (!document.body) return "";
	document.querySelectorAll("script, style, noscript").forEach(el => el.remove());
	return document.body.innerText || "";
}`

// Render loads req.URL in a fresh incognito context and returns the
// settled DOM with its telemetry.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Validate              – reject bad URLs before touching the browser
//  2. Timeout guard         – hard deadline on the entire operation
//  3. Context slot          – wait for one of MaxContexts slots
//  4. Acquire browser       – launch lazily, recycle if unhealthy
//  5. Incognito context     – cookies and storage isolated per render
//  6. DEFER: cleanup        – page and context closed on every path
//  7. Stealth injection     – before navigation
//  8. Hijack mount          – block trackers and configured resource types
//  9. Context binding       – propagate the deadline to all Rod operations
//  10. Idle listener setup  – must be registered before Navigate
//  11. Navigate + wait      – network idle or DOM stable
//  12. Telemetry            – status, bytes, title, final URL
//  13. Extract              – page.HTML(), then visible text
//
// The cleanup in step 6 uses the original page reference without the
// request context, so it succeeds even after the deadline has passed.
func (s *Scraper) Render(ctx context.Context, req *models.RenderRequest) (*models.RenderedPage, error) {
	// ── 1. Validate ───────────────────────────────────────────────────
	target, err := models.ValidateURL(req.URL)
	if err != nil {
		return nil, err
	}

	// ── 2. Timeout guard ──────────────────────────────────────────────
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.renderCfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 3. Context slot ───────────────────────────────────────────────
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, categorizeError(ctx, err, "timed out waiting for a free browser context")
	}
	defer s.slots.Release(1)

	s.activeContexts.Add(1)
	defer s.activeContexts.Add(-1)

	// ── 4. Acquire browser ────────────────────────────────────────────
	browser, err := s.acquire()
	if err != nil {
		return nil, err
	}
	crashed := false
	defer func() { s.release(crashed) }()

	// ── 5. Incognito context + page ───────────────────────────────────
	incognito, err := browser.Incognito()
	if err != nil {
		crashed = true
		return nil, models.NewAnalysisError(models.ErrCodeBrowserCrash, "failed to open browsing context", err)
	}

	// ── 6. DEFER: context cleanup ─────────────────────────────────────
	defer func() {
		if closeErr := incognito.Close(); closeErr != nil {
			s.logger.Warn("cleanup: failed to close browsing context", "error", closeErr)
		}
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		crashed = true
		return nil, models.NewAnalysisError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			s.logger.Debug("cleanup: failed to close page", "error", closeErr)
		}
	}()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		s.logger.Debug("viewport override failed", "error", err)
	}

	// ── 7. Stealth injection ──────────────────────────────────────────
	if req.Stealth || s.renderCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			s.logger.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": "https://www.google.com/search?q=" + url.QueryEscape(target.Hostname()),
			}),
		}.Call(page)
	}

	// ── 8. Hijack mount ───────────────────────────────────────────────
	router := setupHijack(page, newBlockPolicy(s.renderCfg.BlockedResourceTypes, s.renderCfg.BlockAds))
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 9. Bind request context to page ───────────────────────────────
	p := page.Context(ctx)

	// ── 10. Network idle waiter BEFORE navigation ─────────────────────
	// WaitRequestIdle conflicts with HijackRequests on recent Chromium,
	// so pages with a router fall back to WaitDOMStable.
	var waitIdle func()
	if router == nil {
		waitIdle = p.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	}

	// ── 11. Navigate + wait ───────────────────────────────────────────
	start := time.Now()
	if err := p.Navigate(target.String()); err != nil {
		return nil, categorizeError(ctx, err, "navigation to target URL failed")
	}
	if waitIdle != nil {
		waitIdle()
	} else if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil && ctx.Err() == nil {
		s.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}
	if ctx.Err() != nil {
		return nil, categorizeError(ctx, ctx.Err(), "page did not settle in time")
	}
	loadTime := time.Since(start)

	// ── 12. Telemetry ─────────────────────────────────────────────────
	tel, err := p.Eval(telemetryJS)
	if err != nil {
		return nil, categorizeError(ctx, err, "failed to read page telemetry")
	}
	statusCode := tel.Value.Get("status").Int()
	if statusCode == 0 {
		statusCode = 200
	}
	finalURL := tel.Value.Get("href").Str()
	if finalURL == "" {
		finalURL = req.URL
	}

	// ── 13. Extract ───────────────────────────────────────────────────
	rawHTML, err := p.HTML()
	if err != nil {
		return nil, categorizeError(ctx, err, "failed to extract page HTML")
	}
	pageSize := int64(tel.Value.Get("bytes").Int())
	if pageSize <= 0 {
		pageSize = int64(len(rawHTML))
	}

	s.renders.Add(1)
	return &models.RenderedPage{
		URL:         req.URL,
		FinalURL:    finalURL,
		StatusCode:  statusCode,
		HTML:        rawHTML,
		VisibleText: evalStringOrEmpty(p, visibleTextJS),
		Title:       tel.Value.Get("title").Str(),
		LoadTime:    loadTime,
		PageSize:    pageSize,
		Engine:      EngineName,
	}, nil
}

// evalStringOrEmpty evaluates a JS function and returns its string result,
// swallowing any error.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

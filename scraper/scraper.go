// Package scraper renders pages in a shared headless Chrome driven over
// the DevTools protocol.
package scraper

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/sitegrade/config"
	"github.com/use-agent/sitegrade/models"
	"golang.org/x/sync/semaphore"
)

// Scraper owns the shared browser process and renders pages in isolated
// incognito contexts. The browser is launched on first use and stopped by
// Close, by the idle reaper, or when its health says it should be recycled.
// It is safe for concurrent use.
type Scraper struct {
	browserCfg config.BrowserConfig
	renderCfg  config.RenderConfig
	logger     *slog.Logger

	// slots bounds the number of concurrently open browsing contexts.
	slots *semaphore.Weighted

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	health   *browserHealth
	inflight int
	lastUsed time.Time
	closed   bool

	activeContexts atomic.Int32
	renders        atomic.Int64

	stopReaper chan struct{}
	reaperDone chan struct{}
	closeOnce  sync.Once

	// launch starts a browser. Replaced in tests.
	launch func() (*rod.Browser, *launcher.Launcher, error)
}

// NewScraper creates a Scraper. No browser is started until the first
// render.
func NewScraper(browserCfg config.BrowserConfig, renderCfg config.RenderConfig) *Scraper {
	if browserCfg.MaxContexts <= 0 {
		browserCfg.MaxContexts = 1
	}
	s := &Scraper{
		browserCfg: browserCfg,
		renderCfg:  renderCfg,
		logger:     slog.Default().With("component", "scraper"),
		slots:      semaphore.NewWeighted(int64(browserCfg.MaxContexts)),
		stopReaper: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	s.launch = s.launchBrowser

	if browserCfg.IdleTimeout > 0 {
		go s.reapIdle(browserCfg.IdleTimeout)
	} else {
		close(s.reaperDone)
	}
	return s
}

func (s *Scraper) launchBrowser() (*rod.Browser, *launcher.Launcher, error) {
	l := launcher.New().
		Headless(s.browserCfg.Headless).
		NoSandbox(s.browserCfg.NoSandbox)

	if s.browserCfg.BrowserBin != "" {
		l = l.Bin(s.browserCfg.BrowserBin)
	}
	if s.browserCfg.DefaultProxy != "" {
		l = l.Proxy(s.browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, models.NewAnalysisError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, models.NewAnalysisError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	s.logger.Info("browser launched", "controlURL", controlURL, "pid", l.PID())
	return browser, l, nil
}

// acquire returns the shared browser, launching or recycling it as needed,
// and marks one render as in flight. Every successful call must be paired
// with release.
func (s *Scraper) acquire() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, models.NewAnalysisError(models.ErrCodeBrowserCrash, "renderer is shut down", nil)
	}

	now := time.Now()
	if s.browser != nil && s.inflight == 0 {
		if recycle, reason := s.health.shouldRecycle(now); recycle {
			s.logger.Info("recycling browser", "reason", reason, "uses", s.health.uses)
			s.stopLocked()
		}
	}

	if s.browser == nil {
		browser, l, err := s.launch()
		if err != nil {
			return nil, err
		}
		s.browser = browser
		s.launcher = l
		s.health = newBrowserHealth(now, s.browserCfg.MaxUses, s.browserCfg.MaxAge)
	}

	s.inflight++
	s.lastUsed = now
	return s.browser, nil
}

// release ends an in-flight render and feeds its outcome into the browser
// health score.
func (s *Scraper) release(crashed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	s.lastUsed = time.Now()
	if s.health == nil {
		return
	}
	if crashed {
		s.health.recordFailure()
	} else {
		s.health.recordSuccess()
	}
}

// stopLocked closes the browser and kills its process. s.mu must be held.
func (s *Scraper) stopLocked() {
	if s.browser == nil {
		return
	}
	if err := s.browser.Close(); err != nil {
		s.logger.Warn("browser close failed", "error", err)
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	s.browser = nil
	s.launcher = nil
	s.health = nil
	s.logger.Info("browser stopped")
}

// reapIdle stops the browser once it has had no in-flight renders for
// idle. It runs until Close.
func (s *Scraper) reapIdle(idle time.Duration) {
	defer close(s.reaperDone)

	tick := max(idle/4, time.Second)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopReaper:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			if s.browser != nil && s.inflight == 0 && now.Sub(s.lastUsed) >= idle {
				s.logger.Info("stopping idle browser", "idle", now.Sub(s.lastUsed).Round(time.Second))
				s.stopLocked()
			}
			s.mu.Unlock()
		}
	}
}

// Stats returns a snapshot of the browser state.
func (s *Scraper) Stats() models.BrowserStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.BrowserStats{
		Running:        s.browser != nil,
		MaxContexts:    s.browserCfg.MaxContexts,
		ActiveContexts: int(s.activeContexts.Load()),
		Renders:        int(s.renders.Load()),
	}
	if s.launcher != nil {
		stats.BrowserPID = s.launcher.PID()
	}
	return stats
}

// Close stops the idle reaper and kills the browser process. Renders
// started afterwards fail with BROWSER_CRASH. Call this on graceful
// shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	s.closeOnce.Do(func() {
		close(s.stopReaper)
		<-s.reaperDone

		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		s.stopLocked()
		s.logger.Info("scraper shutdown complete")
	})
}

package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/sitegrade/config"
	"github.com/use-agent/sitegrade/models"
)

// newTestScraper returns a Scraper whose launcher must never be reached
// unless the test replaces it.
func newTestScraper(t *testing.T, maxContexts int) *Scraper {
	t.Helper()
	s := NewScraper(
		config.BrowserConfig{MaxContexts: maxContexts},
		config.RenderConfig{Timeout: time.Second},
	)
	s.launch = func() (*rod.Browser, *launcher.Launcher, error) {
		t.Error("browser launched unexpectedly")
		return nil, nil, errors.New("no browser in tests")
	}
	t.Cleanup(s.Close)
	return s
}

func TestRender_InvalidURLNeverLaunches(t *testing.T) {
	s := newTestScraper(t, 2)

	for _, raw := range []string{"", "not a url", "ftp://example.com", "https://", "javascript:alert(1)"} {
		t.Run(raw, func(t *testing.T) {
			_, err := s.Render(context.Background(), &models.RenderRequest{URL: raw})
			if code := models.ErrorCode(err); code != models.ErrCodeInvalidURL {
				t.Errorf("code = %q, want %q", code, models.ErrCodeInvalidURL)
			}
		})
	}
	if stats := s.Stats(); stats.Running || stats.Renders != 0 {
		t.Errorf("stats = %+v, want idle browser", stats)
	}
}

func TestRender_LaunchFailure(t *testing.T) {
	s := newTestScraper(t, 2)
	s.launch = func() (*rod.Browser, *launcher.Launcher, error) {
		return nil, nil, models.NewAnalysisError(models.ErrCodeBrowserCrash, "failed to launch browser", errors.New("exec: chrome not found"))
	}

	_, err := s.Render(context.Background(), &models.RenderRequest{URL: "https://example.com"})
	if code := models.ErrorCode(err); code != models.ErrCodeBrowserCrash {
		t.Fatalf("code = %q, want %q", code, models.ErrCodeBrowserCrash)
	}

	stats := s.Stats()
	if stats.Running || stats.ActiveContexts != 0 {
		t.Errorf("stats = %+v, want no running browser and no active contexts", stats)
	}
	if s.inflight != 0 {
		t.Errorf("inflight = %d, want 0", s.inflight)
	}
}

func TestRender_AfterClose(t *testing.T) {
	s := newTestScraper(t, 1)
	s.Close()

	_, err := s.Render(context.Background(), &models.RenderRequest{URL: "https://example.com"})
	if code := models.ErrorCode(err); code != models.ErrCodeBrowserCrash {
		t.Errorf("code = %q, want %q", code, models.ErrCodeBrowserCrash)
	}
}

func TestRender_WaitsForContextSlot(t *testing.T) {
	s := newTestScraper(t, 1)
	if err := s.slots.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer s.slots.Release(1)

	t.Run("timeout", func(t *testing.T) {
		_, err := s.Render(context.Background(), &models.RenderRequest{
			URL:     "https://example.com",
			Timeout: 20 * time.Millisecond,
		})
		if code := models.ErrorCode(err); code != models.ErrCodeTimeout {
			t.Errorf("code = %q, want %q", code, models.ErrCodeTimeout)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err := s.Render(ctx, &models.RenderRequest{URL: "https://example.com"})
		if code := models.ErrorCode(err); code != models.ErrCodeCancelled {
			t.Errorf("code = %q, want %q", code, models.ErrCodeCancelled)
		}
	})
}

func TestBrowserHealth(t *testing.T) {
	launched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		maxUses int
		maxAge  time.Duration
		record  func(h *browserHealth)
		at      time.Time
		want    bool
		reason  string
	}{
		{
			name:    "fresh browser",
			maxUses: 10,
			maxAge:  time.Hour,
			record:  func(*browserHealth) {},
			at:      launched,
		},
		{
			name:    "two failures recycle",
			maxUses: 10,
			record: func(h *browserHealth) {
				h.recordFailure()
				h.recordFailure()
			},
			at:     launched,
			want:   true,
			reason: "errors",
		},
		{
			name:    "successes heal",
			maxUses: 10,
			record: func(h *browserHealth) {
				h.recordFailure()
				h.recordSuccess()
				h.recordSuccess()
				h.recordFailure()
			},
			at: launched,
		},
		{
			name:    "max uses",
			maxUses: 2,
			record: func(h *browserHealth) {
				h.recordSuccess()
				h.recordSuccess()
			},
			at:     launched,
			want:   true,
			reason: "max uses",
		},
		{
			name:   "max age",
			maxAge: time.Hour,
			record: func(*browserHealth) {},
			at:     launched.Add(time.Hour),
			want:   true,
			reason: "max age",
		},
		{
			name:   "zero limits disable triggers",
			record: func(h *browserHealth) { h.recordSuccess() },
			at:     launched.Add(1000 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newBrowserHealth(launched, tt.maxUses, tt.maxAge)
			tt.record(h)
			got, reason := h.shouldRecycle(tt.at)
			if got != tt.want || reason != tt.reason {
				t.Errorf("shouldRecycle = (%v, %q), want (%v, %q)", got, reason, tt.want, tt.reason)
			}
		})
	}
}

func TestCategorizeError(t *testing.T) {
	live := context.Background()
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want string
	}{
		{"dns", live, &rod.NavigationError{Reason: "net::ERR_NAME_NOT_RESOLVED"}, models.ErrCodeDNSFailure},
		{"refused", live, &rod.NavigationError{Reason: "net::ERR_CONNECTION_REFUSED"}, models.ErrCodeNavigation},
		{"deadline", expired, errors.New("websocket: read failed"), models.ErrCodeTimeout},
		{"wrapped deadline", live, context.DeadlineExceeded, models.ErrCodeTimeout},
		{"cancelled", cancelled, errors.New("websocket: read failed"), models.ErrCodeCancelled},
		{"other", live, errors.New("boom"), models.ErrCodeNavigation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := categorizeError(tt.ctx, tt.err, "navigation to target URL failed")
			if got.Code != tt.want {
				t.Errorf("code = %q, want %q", got.Code, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("categorized error does not wrap the cause")
			}
		})
	}
}

func TestIsTrackerHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"stats.g.doubleclick.net", true},
		{"WWW.Google-Analytics.com", true},
		{"googletagmanager.com.", true},
		{"example.com", false},
		{"notdoubleclick.net", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := isTrackerHost(tt.host); got != tt.want {
				t.Errorf("isTrackerHost(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestBlockPolicy(t *testing.T) {
	p := newBlockPolicy([]string{"Image", "Font", "Bogus"}, true)

	tests := []struct {
		name string
		rt   proto.NetworkResourceType
		url  string
		want bool
	}{
		{"image blocked", proto.NetworkResourceTypeImage, "https://example.com/a.png", true},
		{"font blocked", proto.NetworkResourceTypeFont, "https://example.com/a.woff2", true},
		{"script allowed", proto.NetworkResourceTypeScript, "https://example.com/app.js", false},
		{"tracker script blocked", proto.NetworkResourceTypeScript, "https://www.googletagmanager.com/gtm.js", true},
		{"document never blocked", proto.NetworkResourceTypeDocument, "https://doubleclick.net/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.blocks(tt.rt, tt.url); got != tt.want {
				t.Errorf("blocks = %v, want %v", got, tt.want)
			}
		})
	}

	if !newBlockPolicy(nil, false).empty() {
		t.Error("policy without types or trackers should be empty")
	}
	if !newBlockPolicy([]string{"Unknown"}, false).empty() {
		t.Error("unknown resource types should be ignored")
	}
}

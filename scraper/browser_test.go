package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/sitegrade/config"
	"github.com/use-agent/sitegrade/models"
)

// newChromeScraper returns a Scraper backed by a real browser, skipping the
// test when none is installed.
func newChromeScraper(t *testing.T) *Scraper {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome or Chromium found")
	}
	s := NewScraper(
		config.BrowserConfig{
			Headless:    true,
			NoSandbox:   os.Getuid() == 0,
			BrowserBin:  bin,
			MaxContexts: 2,
		},
		config.RenderConfig{Timeout: 20 * time.Second},
	)
	t.Cleanup(s.Close)
	return s
}

// openContexts lists the incognito contexts left on the shared browser.
func openContexts(t *testing.T, s *Scraper) []proto.BrowserBrowserContextID {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		t.Fatal("browser is not running")
	}
	res, err := proto.TargetGetBrowserContexts{}.Call(s.browser)
	if err != nil {
		t.Fatal(err)
	}
	return res.BrowserContextIDs
}

func TestRender_ChromeClosesContexts(t *testing.T) {
	s := newChromeScraper(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Fast Page</title></head><body><h1>Ready</h1></body></html>`)
	}))
	defer srv.Close()
	defer close(release)

	tests := []struct {
		name     string
		path     string
		timeout  time.Duration
		wantCode string
	}{
		{name: "timed out render", path: "/slow", timeout: 750 * time.Millisecond, wantCode: models.ErrCodeTimeout},
		{name: "completed render", path: "/fast", timeout: 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.Render(context.Background(), &models.RenderRequest{
				URL:     srv.URL + tt.path,
				Timeout: tt.timeout,
			})
			switch {
			case tt.wantCode == "" && err != nil:
				t.Fatalf("Render() error = %v", err)
			case tt.wantCode == "":
				if page.Title != "Fast Page" {
					t.Errorf("title = %q, want Fast Page", page.Title)
				}
			case models.ErrorCode(err) != tt.wantCode:
				t.Fatalf("code = %q, want %q (err: %v)", models.ErrorCode(err), tt.wantCode, err)
			}

			if ids := openContexts(t, s); len(ids) != 0 {
				t.Errorf("browser contexts left open: %v", ids)
			}
			if active := s.Stats().ActiveContexts; active != 0 {
				t.Errorf("active contexts = %d, want 0", active)
			}
		})
	}
}

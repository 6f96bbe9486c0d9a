package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"", "success"},
		{"RENDER_TIMEOUT", "render_timeout"},
		{"QUOTA_EXCEEDED", "quota_exceeded"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.code); got != tt.want {
			t.Errorf("Outcome(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	m.AnalysesTotal.WithLabelValues(Outcome("")).Inc()
	m.QuotaDenialsTotal.Inc()
	m.RenderDurationSeconds.WithLabelValues("browser").Observe(1.5)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`sitegrade_analyses_total{outcome="success"} 1`,
		`sitegrade_quota_denials_total 1`,
		`sitegrade_render_duration_seconds_count{engine="browser"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNew_NilRegistererIsPrivate(t *testing.T) {
	// Two instances must not collide on a shared registry.
	a := New(nil)
	b := New(nil)
	if a == nil || b == nil {
		t.Fatal("New returned nil")
	}
}

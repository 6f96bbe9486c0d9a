package middleware

import (
	"testing"
	"time"

	"github.com/use-agent/sitegrade/config"
)

var t0 = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func TestLimiterSet_PerCallerBuckets(t *testing.T) {
	s := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}, t0)

	steps := []struct {
		caller string
		at     time.Duration
		want   bool
	}{
		{"user:a", 0, true},
		{"user:a", 0, true},
		{"user:a", 0, false},
		{"ip:10.0.0.1", 0, true},
		{"user:a", time.Second, true},
		{"user:a", time.Second, false},
	}
	for i, st := range steps {
		if got := s.allow(st.caller, t0.Add(st.at)); got != st.want {
			t.Errorf("step %d: allow(%s, +%v) = %v, want %v", i, st.caller, st.at, got, st.want)
		}
	}
}

func TestLimiterSet_EvictsIdleBuckets(t *testing.T) {
	tests := []struct {
		name     string
		idleFor  time.Duration
		wantSize int
	}{
		{name: "recently seen kept", idleFor: 10 * time.Minute, wantSize: 2},
		{name: "idle dropped", idleFor: limiterIdle + sweepEvery, wantSize: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, t0)
			s.allow("ip:10.0.0.1", t0)
			s.allow("user:b", t0.Add(tt.idleFor))
			if got := s.size(); got != tt.wantSize {
				t.Errorf("size = %d, want %d", got, tt.wantSize)
			}
		})
	}
}

func TestLimiterSet_EvictedCallerStartsFresh(t *testing.T) {
	s := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 0.0001, Burst: 1}, t0)
	if !s.allow("user:a", t0) {
		t.Fatal("first request denied")
	}
	if s.allow("user:a", t0.Add(time.Minute)) {
		t.Fatal("second request allowed within the burst window")
	}
	later := t0.Add(time.Minute + limiterIdle + sweepEvery)
	if !s.allow("user:a", later) {
		t.Error("request after eviction denied")
	}
}

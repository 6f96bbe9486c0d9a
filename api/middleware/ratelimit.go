package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitegrade/config"
	"github.com/use-agent/sitegrade/models"
	"golang.org/x/time/rate"
)

const (
	// limiterIdle is how long a caller's bucket survives without requests.
	limiterIdle = time.Hour
	// sweepEvery spaces out the scans for idle buckets.
	sweepEvery = 5 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per caller identifier. Idle buckets
// are dropped on the request path, at most once per sweepEvery.
type limiterSet struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiterSet(cfg config.RateLimitConfig, now time.Time) *limiterSet {
	return &limiterSet{
		limit:     rate.Limit(cfg.RequestsPerSecond),
		burst:     cfg.Burst,
		buckets:   make(map[string]*bucket),
		lastSweep: now,
	}
}

// allow spends one token from identifier's bucket at now.
func (s *limiterSet) allow(identifier string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= sweepEvery {
		s.sweepLocked(now.Add(-limiterIdle))
		s.lastSweep = now
	}

	b, ok := s.buckets[identifier]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[identifier] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (s *limiterSet) sweepLocked(cutoff time.Time) {
	for id, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, id)
		}
	}
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimit returns per-caller token-bucket limiting built on
// golang.org/x/time/rate. It must run after Identity.
//
// It only absorbs bursts. The daily allowance belongs to the quota tracker.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	set := newLimiterSet(cfg, time.Now())

	return func(c *gin.Context) {
		identifier, _ := Caller(c)
		if set.allow(identifier, time.Now()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.AnalyzeResponse{
			Success: false,
			Error: &models.ErrorDetail{
				Code:    models.ErrCodeRateLimited,
				Message: "rate limit exceeded, please slow down",
			},
		})
	}
}

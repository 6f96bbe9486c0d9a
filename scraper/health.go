package scraper

import "time"

// Browser health scoring.
//
// Scoring rules:
//   - Success: errScore -= 1 (min 0)
//   - Failure: errScore += 2
//
// Recycle triggers (any one):
//   - errScore >= 3
//   - uses >= maxUses
//   - age >= maxAge
//
// The browser is only recycled between renders, so an in-flight render
// never loses its browser.
type browserHealth struct {
	launchedAt time.Time
	maxUses    int
	maxAge     time.Duration
	uses       int
	errScore   int
}

const recycleErrScore = 3

func newBrowserHealth(launchedAt time.Time, maxUses int, maxAge time.Duration) *browserHealth {
	return &browserHealth{launchedAt: launchedAt, maxUses: maxUses, maxAge: maxAge}
}

func (h *browserHealth) recordSuccess() {
	h.uses++
	h.errScore = max(0, h.errScore-1)
}

func (h *browserHealth) recordFailure() {
	h.uses++
	h.errScore += 2
}

// shouldRecycle reports whether the browser should be replaced, and why.
// A zero maxUses or maxAge disables that trigger.
func (h *browserHealth) shouldRecycle(now time.Time) (bool, string) {
	switch {
	case h.errScore >= recycleErrScore:
		return true, "errors"
	case h.maxUses > 0 && h.uses >= h.maxUses:
		return true, "max uses"
	case h.maxAge > 0 && now.Sub(h.launchedAt) >= h.maxAge:
		return true, "max age"
	}
	return false, ""
}

// Package quota enforces the per-caller daily analysis allowance.
//
// Anonymous callers get a fixed number of analyses per calendar day. A slot
// is reserved before the expensive work starts and released again if the
// analysis fails, so concurrent requests cannot overshoot the limit and
// failures outside the caller's control do not cost them quota.
// Authenticated callers are never counted.
package quota

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/sitegrade/models"
)

// DefaultDailyLimit is the anonymous allowance per calendar day.
const DefaultDailyLimit = 3

// rollbackTimeout bounds the store call made when releasing a reservation.
const rollbackTimeout = 5 * time.Second

// Tracker checks and reserves quota against a Store.
type Tracker struct {
	store  Store
	limit  int
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocation sets the timezone whose midnight resets the window.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker creates a Tracker. A limit <= 0 uses DefaultDailyLimit.
func NewTracker(store Store, limit int, opts ...Option) *Tracker {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	t := &Tracker{
		store:  store,
		limit:  limit,
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Limit returns the anonymous allowance per window.
func (t *Tracker) Limit() int {
	return t.limit
}

// Window returns the window containing the current time.
func (t *Tracker) Window() Window {
	return DayWindow(t.now(), t.loc)
}

// Check reports the caller's current allowance without reserving anything.
func (t *Tracker) Check(ctx context.Context, identifier string, authenticated bool) (models.QuotaStatus, error) {
	rec, err := t.Usage(ctx, identifier, authenticated)
	if err != nil {
		return t.deniedStatus(t.Window()), err
	}
	return t.Status(rec), nil
}

// Status derives the allowance from a usage record.
func (t *Tracker) Status(rec models.QuotaRecord) models.QuotaStatus {
	w := Window{Start: rec.WindowStart, End: rec.WindowEnd}
	if rec.IsUnlimited() {
		return unlimitedStatus(w)
	}
	return t.status(rec.Used, w)
}

// Usage returns the caller's usage in the current window. Authenticated
// callers get a record with the unlimited sentinel and no store lookup.
func (t *Tracker) Usage(ctx context.Context, identifier string, authenticated bool) (models.QuotaRecord, error) {
	w := t.Window()
	rec := models.QuotaRecord{
		Identifier:  identifier,
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Limit:       t.limit,
	}
	if authenticated {
		rec.Limit = models.Unlimited
		return rec, nil
	}

	used, err := t.store.CountUsage(ctx, identifier, w)
	if err != nil {
		t.logger.Error("quota count failed", "identifier", identifier, "error", err)
		return rec, models.NewAnalysisError(models.ErrCodeQuotaUnavailable,
			"usage limits cannot be verified right now, please try again shortly", err)
	}
	rec.Used = used
	return rec, nil
}

// CheckAndReserve atomically checks the caller's allowance and, if a slot
// is free, reserves it. The returned status reflects usage before this
// reservation.
//
// When the limit is reached it returns a *models.QuotaExceededError. When
// the store cannot be reached it fails closed with QUOTA_UNAVAILABLE. In
// both cases no reservation is made.
func (t *Tracker) CheckAndReserve(ctx context.Context, identifier, url string, authenticated bool) (*Reservation, models.QuotaStatus, error) {
	w := t.Window()
	if authenticated {
		return &Reservation{state: stateCommitted}, unlimitedStatus(w), nil
	}

	used, err := t.store.TryReserve(ctx, identifier, url, t.now(), w, t.limit)
	switch {
	case errors.Is(err, ErrLimitReached):
		status := t.status(used, w)
		t.logger.Info("quota exhausted", "identifier", identifier, "used", used, "limit", t.limit)
		return nil, status, &models.QuotaExceededError{Status: status}
	case err != nil:
		t.logger.Error("quota reserve failed", "identifier", identifier, "error", err)
		return nil, t.deniedStatus(w), models.NewAnalysisError(models.ErrCodeQuotaUnavailable,
			"usage limits cannot be verified right now, please try again shortly", err)
	}

	t.logger.Debug("quota reserved", "identifier", identifier, "used", used+1, "limit", t.limit)
	return &Reservation{
		tracker:    t,
		identifier: identifier,
		url:        url,
		window:     w,
	}, t.status(used, w), nil
}

func (t *Tracker) status(used int, w Window) models.QuotaStatus {
	return models.QuotaStatus{
		Allowed:   used < t.limit,
		Remaining: max(0, t.limit-used),
		Limit:     t.limit,
		ResetAt:   w.End,
	}
}

func (t *Tracker) deniedStatus(w Window) models.QuotaStatus {
	return models.QuotaStatus{Allowed: false, Remaining: 0, Limit: t.limit, ResetAt: w.End}
}

func unlimitedStatus(w Window) models.QuotaStatus {
	return models.QuotaStatus{
		Allowed:   true,
		Remaining: models.Unlimited,
		Limit:     models.Unlimited,
		ResetAt:   w.End,
	}
}

type reservationState int

const (
	statePending reservationState = iota
	stateCommitted
	stateRolledBack
)

// Reservation is a provisional quota debit. Exactly one of Commit or
// Rollback takes effect; later calls are no-ops.
type Reservation struct {
	tracker    *Tracker
	identifier string
	url        string
	window     Window

	mu    sync.Mutex
	state reservationState
}

// Commit keeps the usage. The usage was recorded when the slot was
// reserved, so this only finalizes the reservation.
func (r *Reservation) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == statePending {
		r.state = stateCommitted
	}
}

// Rollback releases the reserved slot. It runs with a context detached
// from ctx's cancellation so an aborted request still gives the slot back.
func (r *Reservation) Rollback(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePending {
		return nil
	}
	r.state = stateRolledBack

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := r.tracker.store.DeleteUsage(ctx, r.identifier, r.url, r.window); err != nil {
		r.tracker.logger.Error("quota rollback failed", "identifier", r.identifier, "url", r.url, "error", err)
		return err
	}
	r.tracker.logger.Debug("quota reservation rolled back", "identifier", r.identifier)
	return nil
}

// Committed reports whether the reservation was kept.
func (r *Reservation) Committed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateCommitted
}

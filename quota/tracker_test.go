package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/sitegrade/models"
)

var testNow = time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)

func newTestTracker(store Store) *Tracker {
	return NewTracker(store, 3, WithClock(func() time.Time { return testNow }))
}

func TestTracker_FourthCallDenied(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(NewMemoryStore())

	wantRemaining := []int{3, 2, 1}
	for i, want := range wantRemaining {
		res, status, err := tr.CheckAndReserve(ctx, "ip:1.2.3.4", "https://example.com", false)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
		if !status.Allowed || status.Remaining != want || status.Limit != 3 {
			t.Errorf("call %d: status = %+v, want allowed with remaining %d", i+1, status, want)
		}
		res.Commit()
	}

	res, status, err := tr.CheckAndReserve(ctx, "ip:1.2.3.4", "https://example.com", false)
	if res != nil {
		t.Error("expected no reservation on the 4th call")
	}
	var qe *models.QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want QuotaExceededError", err)
	}
	if status.Allowed || status.Remaining != 0 {
		t.Errorf("status = %+v, want denied with remaining 0", status)
	}
	if want := time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC); !status.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", status.ResetAt, want)
	}
}

func TestTracker_RollbackRestoresCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := newTestTracker(store)

	first, _, err := tr.CheckAndReserve(ctx, "ip:a", "https://one.example", false)
	if err != nil {
		t.Fatal(err)
	}
	first.Commit()

	before, err := tr.Check(ctx, "ip:a", false)
	if err != nil {
		t.Fatal(err)
	}

	res, _, err := tr.CheckAndReserve(ctx, "ip:a", "https://two.example", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := res.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	after, err := tr.Check(ctx, "ip:a", false)
	if err != nil {
		t.Fatal(err)
	}
	if after.Remaining != before.Remaining {
		t.Errorf("remaining after rollback = %d, want %d", after.Remaining, before.Remaining)
	}
}

func TestReservation_CommitThenRollbackIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := newTestTracker(store)

	res, _, err := tr.CheckAndReserve(ctx, "ip:a", "https://example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	res.Commit()
	if err := res.Rollback(ctx); err != nil {
		t.Fatal(err)
	}
	if !res.Committed() {
		t.Error("Committed() = false after Commit")
	}

	used, _ := store.CountUsage(ctx, "ip:a", tr.Window())
	if used != 1 {
		t.Errorf("used = %d, want 1", used)
	}
}

func TestReservation_RollbackWithCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	tr := newTestTracker(store)

	ctx, cancel := context.WithCancel(context.Background())
	res, _, err := tr.CheckAndReserve(ctx, "ip:a", "https://example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := res.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := res.Rollback(ctx); err != nil {
		t.Fatalf("second Rollback: %v", err)
	}

	used, _ := store.CountUsage(context.Background(), "ip:a", tr.Window())
	if used != 0 {
		t.Errorf("used = %d, want 0", used)
	}
}

func TestTracker_Authenticated(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{err: errors.New("must not be called")}
	tr := newTestTracker(store)

	for range 10 {
		res, status, err := tr.CheckAndReserve(ctx, "user:42", "https://example.com", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !status.Allowed || status.Remaining != models.Unlimited || status.Limit != models.Unlimited {
			t.Errorf("status = %+v, want unlimited", status)
		}
		if status.ResetAt.IsZero() {
			t.Error("ResetAt should still be the next window boundary")
		}
		if err := res.Rollback(ctx); err != nil {
			t.Errorf("Rollback on unlimited reservation: %v", err)
		}
	}
	if store.calls.Load() != 0 {
		t.Errorf("store called %d times for authenticated caller", store.calls.Load())
	}
}

func TestTracker_Usage(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(NewMemoryStore())

	res, _, err := tr.CheckAndReserve(ctx, "ip:a", "https://example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	res.Commit()

	rec, err := tr.Usage(ctx, "ip:a", false)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Identifier != "ip:a" || rec.Used != 1 || rec.Limit != 3 || rec.IsUnlimited() {
		t.Errorf("record = %+v", rec)
	}
	if want := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC); !rec.WindowStart.Equal(want) {
		t.Errorf("WindowStart = %v, want %v", rec.WindowStart, want)
	}

	rec, err = tr.Usage(ctx, "user:42", true)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsUnlimited() || rec.Used != 0 {
		t.Errorf("authenticated record = %+v, want unlimited", rec)
	}

	status, err := tr.Check(ctx, "ip:a", false)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Allowed || status.Remaining != 2 {
		t.Errorf("Check = %+v, want 2 remaining", status)
	}
}

func TestTracker_FailsClosed(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&failingStore{err: errors.New("connection refused")})

	res, status, err := tr.CheckAndReserve(ctx, "ip:a", "https://example.com", false)
	if res != nil {
		t.Error("expected no reservation")
	}
	if status.Allowed {
		t.Error("status.Allowed = true, want false")
	}
	if code := models.ErrorCode(err); code != models.ErrCodeQuotaUnavailable {
		t.Errorf("code = %q, want %q", code, models.ErrCodeQuotaUnavailable)
	}

	_, err = tr.Check(ctx, "ip:a", false)
	if code := models.ErrorCode(err); code != models.ErrCodeQuotaUnavailable {
		t.Errorf("Check code = %q, want %q", code, models.ErrCodeQuotaUnavailable)
	}
}

func TestTracker_ConcurrentReservers(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(NewMemoryStore())

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := tr.CheckAndReserve(ctx, "ip:burst", "https://example.com", false); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 3 {
		t.Errorf("granted = %d, want 3", got)
	}
}

func TestTracker_WindowResets(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := testNow
	tr := NewTracker(store, 1, WithClock(func() time.Time { return now }))

	if _, _, err := tr.CheckAndReserve(ctx, "ip:a", "u", false); err != nil {
		t.Fatal(err)
	}
	if _, _, err := tr.CheckAndReserve(ctx, "ip:a", "u", false); err == nil {
		t.Fatal("expected denial within the same day")
	}

	now = now.Add(9 * time.Hour)
	if _, status, err := tr.CheckAndReserve(ctx, "ip:a", "u", false); err != nil {
		t.Fatalf("expected new window to allow, got %v", err)
	} else if status.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", status.Remaining)
	}
}

func TestTracker_IdentifiersAreIndependent(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), 1, WithClock(func() time.Time { return testNow }))

	if _, _, err := tr.CheckAndReserve(ctx, "ip:a", "u", false); err != nil {
		t.Fatal(err)
	}
	if _, _, err := tr.CheckAndReserve(ctx, "ip:b", "u", false); err != nil {
		t.Errorf("second identifier denied: %v", err)
	}
}

func TestDayWindow(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name      string
		now       time.Time
		loc       *time.Location
		wantStart time.Time
	}{
		{
			name:      "utc midday",
			now:       time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
			loc:       time.UTC,
			wantStart: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "nil location is utc",
			now:       time.Date(2026, 1, 10, 23, 59, 0, 0, time.UTC),
			wantStart: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "late utc is next day in berlin",
			now:       time.Date(2026, 1, 10, 23, 30, 0, 0, time.UTC),
			loc:       berlin,
			wantStart: time.Date(2026, 1, 11, 0, 0, 0, 0, berlin),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DayWindow(tt.now, tt.loc)
			if !w.Start.Equal(tt.wantStart) {
				t.Errorf("Start = %v, want %v", w.Start, tt.wantStart)
			}
			if !w.Contains(tt.now) {
				t.Error("window does not contain now")
			}
			if w.Contains(w.End) {
				t.Error("window must be half-open")
			}
		})
	}
}

type failingStore struct {
	err   error
	calls atomic.Int32
}

func (s *failingStore) CountUsage(context.Context, string, Window) (int, error) {
	s.calls.Add(1)
	return 0, s.err
}

func (s *failingStore) RecordUsage(context.Context, string, string, time.Time) error {
	s.calls.Add(1)
	return s.err
}

func (s *failingStore) DeleteUsage(context.Context, string, string, Window) error {
	s.calls.Add(1)
	return s.err
}

func (s *failingStore) TryReserve(context.Context, string, string, time.Time, Window, int) (int, error) {
	s.calls.Add(1)
	return 0, s.err
}

package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_SignsBody(t *testing.T) {
	var (
		gotSig  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "s3cret")
	event := &Event{Type: EventAnalysisCompleted, ID: "a1", Timestamp: 1, Data: map[string]int{"overall": 80}}
	if err := n.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if want := Sign("s3cret", gotBody); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != EventAnalysisCompleted || decoded.ID != "a1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature header")
		}
	}))
	defer srv.Close()

	if err := NewNotifier(srv.URL, "").Deliver(context.Background(), &Event{Type: "x"}); err != nil {
		t.Fatal(err)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewNotifier(srv.URL, "").Deliver(context.Background(), &Event{Type: "x"}); err == nil {
		t.Error("expected error for 502")
	}
}

func TestNotify_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}

	var (
		mu       sync.Mutex
		statuses []string
	)
	n.OnResult = func(s string) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	}

	n.Notify(&Event{Type: EventAnalysisCompleted, ID: "a1"})
	n.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if len(statuses) != 1 || statuses[0] != "delivered" {
		t.Errorf("statuses = %v, want [delivered]", statuses)
	}
}

func TestNotify_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.delays = []time.Duration{0, time.Millisecond}

	var status atomic.Value
	n.OnResult = func(s string) { status.Store(s) }

	n.Notify(&Event{Type: EventAnalysisCompleted})
	n.Wait()

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if status.Load() != "failed" {
		t.Errorf("status = %v, want failed", status.Load())
	}
}

func TestClose_AbandonsPendingRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.delays = []time.Duration{0, time.Hour}

	results := make(chan string, 2)
	n.OnResult = func(s string) { results <- s }

	n.Notify(&Event{Type: EventAnalysisCompleted, ID: "a1"})
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		n.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while a retry was pending")
	}

	if got := <-results; got != "failed" {
		t.Errorf("status = %q, want failed", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}

	n.Notify(&Event{Type: EventAnalysisCompleted, ID: "a2"})
	if got := <-results; got != "failed" {
		t.Errorf("status after close = %q, want failed", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls after close = %d, want 1", got)
	}
}

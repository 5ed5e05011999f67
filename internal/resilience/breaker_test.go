package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/bolke-ai/bolke/internal/resilience"
)

var errBoom = errors.New("boom")

func newBreaker(resetTimeout time.Duration) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.Config{
		Name:         "test",
		MaxFailures:  3,
		ResetTimeout: resetTimeout,
		HalfOpenMax:  1,
	})
}

func fail(cb *resilience.CircuitBreaker) error {
	return cb.Execute(func() error { return errBoom })
}

func succeed(cb *resilience.CircuitBreaker) error {
	return cb.Execute(func() error { return nil })
}

// ─── TestBreaker_OpensAfterConsecutiveFailures ───────────────────────────────

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := newBreaker(time.Hour)

	for i := range 3 {
		if err := fail(cb); !errors.Is(err, errBoom) {
			t.Fatalf("failure %d: got %v", i, err)
		}
	}
	if got := cb.State(); got != resilience.StateOpen {
		t.Fatalf("State = %v, want open", got)
	}
	if err := succeed(cb); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("open breaker executed the call: %v", err)
	}
}

// ─── TestBreaker_SuccessResetsFailureCount ───────────────────────────────────

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := newBreaker(time.Hour)

	_ = fail(cb)
	_ = fail(cb)
	_ = succeed(cb)
	_ = fail(cb)
	_ = fail(cb)

	if got := cb.State(); got != resilience.StateClosed {
		t.Fatalf("State = %v, want closed after interleaved success", got)
	}
}

// ─── TestBreaker_HalfOpenProbeClosesOnSuccess ────────────────────────────────

func TestBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	cb := newBreaker(10 * time.Millisecond)
	for range 3 {
		_ = fail(cb)
	}
	time.Sleep(20 * time.Millisecond)

	if got := cb.State(); got != resilience.StateHalfOpen {
		t.Fatalf("State = %v, want half-open after reset timeout", got)
	}
	if err := succeed(cb); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if got := cb.State(); got != resilience.StateClosed {
		t.Fatalf("State = %v, want closed after successful probe", got)
	}
}

// ─── TestBreaker_HalfOpenProbeReopensOnFailure ───────────────────────────────

func TestBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	t.Parallel()

	cb := newBreaker(10 * time.Millisecond)
	for range 3 {
		_ = fail(cb)
	}
	time.Sleep(20 * time.Millisecond)

	if err := fail(cb); !errors.Is(err, errBoom) {
		t.Fatalf("probe call: %v", err)
	}
	if got := cb.State(); got != resilience.StateOpen {
		t.Fatalf("State = %v, want re-opened", got)
	}
	if err := succeed(cb); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("re-opened breaker executed the call: %v", err)
	}
}

// ─── TestBreaker_Reset ───────────────────────────────────────────────────────

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := newBreaker(time.Hour)
	for range 3 {
		_ = fail(cb)
	}

	cb.Reset()
	if err := succeed(cb); err != nil {
		t.Fatalf("reset breaker rejected the call: %v", err)
	}
}

// ─── TestRegistry_IndependentBreakersPerName ─────────────────────────────────

func TestRegistry_IndependentBreakersPerName(t *testing.T) {
	t.Parallel()

	r := resilience.NewRegistry(resilience.Config{MaxFailures: 1, ResetTimeout: time.Hour})

	_ = r.For("zepto").Execute(func() error { return errBoom })

	if err := r.For("zepto").Execute(func() error { return nil }); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("zepto breaker should be open: %v", err)
	}
	if err := r.For("blinkit").Execute(func() error { return nil }); err != nil {
		t.Fatalf("blinkit breaker tripped by zepto: %v", err)
	}
	if r.For("zepto") != r.For("zepto") {
		t.Error("registry must reuse breakers per name")
	}
}

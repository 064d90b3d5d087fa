package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/smyja/web3event/internal/testutil"
)

const hook = "http://example.com/hook"

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(threshold, cooldown).WithClock(clock.Now), clock
}

func trip(b *Breaker, url string, n int) {
	for i := 0; i < n; i++ {
		b.RecordFailure(url)
	}
}

func TestAllow_UnknownURL_Allowed(t *testing.T) {
	b, _ := newTestBreaker(3, 5*time.Second)
	if err := b.Allow(hook); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	b, _ := newTestBreaker(3, 5*time.Second)
	trip(b, hook, 2)
	if err := b.Allow(hook); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if got := b.State(hook); got != StateClosed {
		t.Errorf("State = %v, want closed", got)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	b, _ := newTestBreaker(3, 5*time.Second)
	trip(b, hook, 3)
	if err := b.Allow(hook); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := b.State(hook); got != StateOpen {
		t.Errorf("State = %v, want open", got)
	}
}

func TestAllow_OpenAfterCooldown_SingleTrial(t *testing.T) {
	b, clock := newTestBreaker(3, 10*time.Second)
	trip(b, hook, 3)

	clock.Advance(9 * time.Second)
	if err := b.Allow(hook); err == nil {
		t.Fatal("expected ErrCircuitOpen before cooldown")
	}

	clock.Advance(time.Second)
	if err := b.Allow(hook); err != nil {
		t.Fatalf("expected nil (trial allowed), got %v", err)
	}
	if got := b.State(hook); got != StateHalfOpen {
		t.Errorf("State = %v, want half_open", got)
	}
	if err := b.Allow(hook); err == nil {
		t.Fatal("expected ErrCircuitOpen while half-open trial in flight")
	}
}

func TestRecordSuccess_ResetsToClosed(t *testing.T) {
	b, clock := newTestBreaker(3, 10*time.Second)
	trip(b, hook, 3)
	clock.Advance(10 * time.Second)
	_ = b.Allow(hook)
	b.RecordSuccess(hook)

	if err := b.Allow(hook); err != nil {
		t.Fatalf("expected nil after reset, got %v", err)
	}
	// Failure count starts over.
	trip(b, hook, 2)
	if err := b.Allow(hook); err != nil {
		t.Fatalf("expected nil below threshold after reset, got %v", err)
	}
}

func TestRecordFailure_HalfOpenReopens(t *testing.T) {
	b, clock := newTestBreaker(3, 10*time.Second)
	trip(b, hook, 3)
	clock.Advance(10 * time.Second)
	_ = b.Allow(hook)
	b.RecordFailure(hook)

	if err := b.Allow(hook); err == nil {
		t.Fatal("expected ErrCircuitOpen after trial failure re-open")
	}
	clock.Advance(10 * time.Second)
	if err := b.Allow(hook); err != nil {
		t.Fatalf("expected a new trial after second cooldown, got %v", err)
	}
}

func TestNew_ThresholdFloor(t *testing.T) {
	b, _ := newTestBreaker(0, time.Minute)
	b.RecordFailure(hook)
	if err := b.Allow(hook); err == nil {
		t.Fatal("expected a single failure to open a zero-threshold breaker")
	}
}

func TestIndependentURLs(t *testing.T) {
	b, _ := newTestBreaker(2, 5*time.Second)
	url1 := "http://a.com/hook"
	url2 := "http://b.com/hook"
	trip(b, url1, 2)
	if err := b.Allow(url1); err == nil {
		t.Fatal("expected url1 open")
	}
	if err := b.Allow(url2); err != nil {
		t.Fatalf("expected url2 allowed, got %v", err)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}

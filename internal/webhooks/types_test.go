package webhooks

import (
	"testing"
	"time"
)

func TestRetryPolicyDelayExponential(t *testing.T) {
	p := RetryPolicy{
		Strategy:     StrategyExponential,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		MaxAttempts:  5,
	}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, time.Minute}, // capped
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempts); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestRetryPolicyDelayLinear(t *testing.T) {
	p := RetryPolicy{
		Strategy:     StrategyLinear,
		InitialDelay: 2 * time.Second,
		MaxDelay:     7 * time.Second,
		MaxAttempts:  5,
	}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 6 * time.Second},
		{3, 7 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempts); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestRetryPolicyDelayMonotonic(t *testing.T) {
	for _, strategy := range []Strategy{StrategyExponential, StrategyLinear} {
		p := RetryPolicy{
			Strategy:     strategy,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Minute,
			MaxAttempts:  10,
		}
		prev := time.Duration(0)
		for attempts := 0; attempts < 30; attempts++ {
			got := p.Delay(attempts)
			if got < prev {
				t.Errorf("%s: Delay(%d) = %v < Delay(%d) = %v", strategy, attempts, got, attempts-1, prev)
			}
			if got > p.MaxDelay {
				t.Errorf("%s: Delay(%d) = %v exceeds cap %v", strategy, attempts, got, p.MaxDelay)
			}
			prev = got
		}
	}
}

func TestPrepareEvent(t *testing.T) {
	var event Event
	PrepareEvent(&event)

	if event.EventID == "" {
		t.Error("EventID not generated")
	}
	if event.EventType != EventPaymentVerified {
		t.Errorf("EventType = %q, want %q", event.EventType, EventPaymentVerified)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}

	// Existing ids survive, so retries stay idempotent.
	fixed := Event{EventID: "evt_fixed", EventType: EventPaymentFailed}
	PrepareEvent(&fixed)
	if fixed.EventID != "evt_fixed" || fixed.EventType != EventPaymentFailed {
		t.Errorf("PrepareEvent overwrote caller fields: %+v", fixed)
	}
}

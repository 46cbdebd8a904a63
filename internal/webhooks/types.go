// Package webhooks delivers payment events to subscriber endpoints through a
// persistent queue with signed payloads and bounded retries.
package webhooks

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/latchpay/server/pkg/x402"
)

// Event types emitted by the payment gate.
const (
	// EventPaymentVerified fires after a payment proof passes verification.
	EventPaymentVerified = "payment.verified"

	// EventPaymentFailed is supported by the payload shape for subscribers
	// that also want rejection notices.
	EventPaymentFailed = "payment.failed"
)

// Event is the JSON body POSTed to subscriber endpoints. EventID is the
// idempotency key: consumers must deduplicate on it, retries reuse it.
type Event struct {
	EventID   string            `json:"eventId"`
	EventType string            `json:"eventType"`
	Timestamp time.Time         `json:"timestamp"`
	Resource  string            `json:"resource,omitempty"`
	Payment   x402.Verification `json:"payment"`
	Error     string            `json:"error,omitempty"`
}

// PrepareEvent fills idempotency fields that are still empty. An EventID set
// by the caller survives, so retries keep the same id.
func PrepareEvent(event *Event) {
	if event.EventID == "" {
		event.EventID = newEventID()
	}
	if event.EventType == "" {
		event.EventType = EventPaymentVerified
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

func newEventID() string {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	return "evt_" + hex.EncodeToString(randomBytes)
}

// Entry is one queued delivery.
type Entry struct {
	ID          string          `json:"id"`
	URL         string          `json:"url"`
	Payload     json.RawMessage `json:"payload"`
	EventType   string          `json:"eventType"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	NextAttempt time.Time       `json:"nextAttempt"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// NewEntryID generates a queue entry identifier.
func NewEntryID() string {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Sprintf("whk_%d", time.Now().UnixNano())
	}
	return "whk_" + hex.EncodeToString(randomBytes)
}

// Strategy selects the backoff curve between delivery attempts.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
)

// RetryPolicy bounds delivery attempts and spaces them out.
type RetryPolicy struct {
	Strategy     Strategy
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultRetryPolicy: three attempts, exponential backoff from 1s capped at
// 5 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Strategy:     StrategyExponential,
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Minute,
		MaxAttempts:  3,
	}
}

// Delay returns the wait before the next attempt, given the number of
// attempts already made. Exponential doubles per attempt, linear grows by
// one initial-delay step; both are capped at MaxDelay.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	var delay time.Duration
	switch p.Strategy {
	case StrategyLinear:
		delay = p.InitialDelay * time.Duration(attempts+1)
	default:
		delay = p.InitialDelay
		for i := 0; i < attempts; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Package cache records verification verdicts by transaction signature. A
// cached success doubles as the consumed-signature marker that powers replay
// protection.
package cache

import (
	"context"
	"time"

	"github.com/latchpay/server/internal/errors"
	"github.com/latchpay/server/pkg/x402"
)

// Verdict is the cached outcome of verifying one signature.
type Verdict struct {
	OK           bool               `json:"ok"`
	Code         errors.ErrorCode   `json:"code,omitempty"`
	Message      string             `json:"message,omitempty"`
	Verification *x402.Verification `json:"verification,omitempty"`
	CachedAt     time.Time          `json:"cachedAt"`
}

// Success wraps a verification result for caching.
func Success(v x402.Verification) Verdict {
	return Verdict{
		OK:           true,
		Verification: &v,
		CachedAt:     time.Now().UTC(),
	}
}

// Failure wraps a deterministic failure for caching.
func Failure(code errors.ErrorCode, message string) Verdict {
	return Verdict{
		OK:       false,
		Code:     code,
		Message:  message,
		CachedAt: time.Now().UTC(),
	}
}

// Store is the verification cache. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the cached verdict for sig, if present and unexpired.
	Get(ctx context.Context, sig string) (Verdict, bool, error)

	// Put stores the verdict for sig with the given TTL.
	Put(ctx context.Context, sig string, verdict Verdict, ttl time.Duration) error

	// Has reports whether sig has an unexpired entry.
	Has(ctx context.Context, sig string) (bool, error)

	// Delete removes the entry for sig, if any.
	Delete(ctx context.Context, sig string) error

	// Close releases backend resources.
	Close() error
}

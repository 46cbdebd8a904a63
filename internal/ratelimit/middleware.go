// Package ratelimit caps request rates before they reach payment
// verification, where each request can cost an RPC round trip.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/latchpay/server/internal/metrics"
	"github.com/latchpay/server/pkg/responders"
)

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool

	// Global limit across all clients, a backstop against floods.
	GlobalLimit  int
	GlobalWindow time.Duration

	// Per-IP limit for individual clients.
	PerIPLimit  int
	PerIPWindow time.Duration

	Metrics *metrics.Metrics
}

// DefaultConfig is generous: it stops obvious spam without restricting
// legitimate paying clients.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		GlobalLimit:  1000,
		GlobalWindow: time.Minute,
		PerIPLimit:   120,
		PerIPWindow:  time.Minute,
	}
}

// GlobalLimiter limits total request throughput.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.GlobalLimit <= 0 {
		return passthrough
	}
	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(limitHandler("global", cfg.GlobalWindow, cfg.Metrics)),
	)
}

// IPLimiter limits each client IP independently.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.PerIPLimit <= 0 {
		return passthrough
	}
	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(limitHandler("per_ip", cfg.PerIPWindow, cfg.Metrics)),
	)
}

func passthrough(next http.Handler) http.Handler {
	return next
}

func limitHandler(scope string, window time.Duration, m *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	retryAfter := int(window.Seconds())
	return func(w http.ResponseWriter, r *http.Request) {
		if m != nil {
			m.RateLimitHitsTotal.WithLabelValues(scope).Inc()
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		responders.JSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               "rate_limit_exceeded",
			"message":             "Rate limit exceeded. Please try again later.",
			"retry_after_seconds": retryAfter,
		})
	}
}

// Package httputil builds the shared outbound HTTP client.
package httputil

import (
	"net/http"
	"time"
)

// NewClient returns an HTTP client with connection pooling tuned for
// repeated requests to the same hosts (webhook endpoints, RPC nodes).
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

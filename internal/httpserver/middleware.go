package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/latchpay/server/pkg/responders"
)

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// adminAuth requires `Authorization: Bearer <key>` when a key is configured;
// with no key configured the guarded endpoint stays open.
func adminAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			header := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(header), []byte(apiKey)) != 1 {
				responders.Error(w, http.StatusUnauthorized, "unauthorized", "invalid or missing admin API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

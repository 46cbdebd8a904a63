// Package httpserver assembles the router: payment-gated resource routes,
// health and metrics endpoints, and webhook queue administration.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/latchpay/server/internal/config"
	"github.com/latchpay/server/internal/logger"
	"github.com/latchpay/server/internal/metrics"
	"github.com/latchpay/server/internal/paywall"
	"github.com/latchpay/server/internal/ratelimit"
	"github.com/latchpay/server/internal/webhooks"
)

// Deps carries the wired components the router serves.
type Deps struct {
	Generator *paywall.Generator
	Verifier  paywall.PaymentVerifier
	Notifier  paywall.Notifier
	Queue     webhooks.Queue
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Logger    zerolog.Logger

	// Handlers overrides the default receipt handler per resource path, so
	// embedding applications can serve their own content behind the gate.
	Handlers map[string]http.Handler
}

// Server wires the router and the HTTP listener.
type Server struct {
	handlers   handlers
	httpServer *http.Server
}

type handlers struct {
	cfg   *config.Config
	deps  Deps
	queue webhooks.Queue
}

// New builds the HTTP server with the configured router.
func New(cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()
	s := &Server{
		handlers: handlers{cfg: cfg, deps: deps, queue: deps.Queue},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}
	ConfigureRouter(router, cfg, deps)
	return s
}

// ConfigureRouter attaches all routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, deps Deps) {
	if router == nil {
		return
	}
	handler := handlers{cfg: cfg, deps: deps, queue: deps.Queue}

	router.Use(cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}).Handler)
	router.Use(securityHeaders)
	router.Use(logger.Middleware(deps.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	rateCfg := ratelimit.Config{
		Enabled:      cfg.RateLimit.Enabled,
		GlobalLimit:  cfg.RateLimit.GlobalLimit,
		GlobalWindow: cfg.RateLimit.GlobalWindow.Duration,
		PerIPLimit:   cfg.RateLimit.PerIPLimit,
		PerIPWindow:  cfg.RateLimit.PerIPWindow.Duration,
		Metrics:      deps.Metrics,
	}
	router.Use(ratelimit.GlobalLimiter(rateCfg))
	router.Use(ratelimit.IPLimiter(rateCfg))

	// Lightweight endpoints get a short timeout; verification routes may
	// wait on RPC and need more headroom.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/healthz", handler.health)
		if deps.Registry != nil {
			r.With(adminAuth(cfg.Server.AdminAPIKey)).
				Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
		}
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		gate := paywall.NewMiddleware(deps.Generator, deps.Verifier, deps.Notifier)
		for _, rc := range cfg.Resources {
			res := paywall.Resource{
				Path:        rc.Path,
				PriceUSD:    rc.PriceUSD,
				Description: rc.Description,
				MimeType:    rc.MimeType,
			}
			content := deps.Handlers[rc.Path]
			if content == nil {
				content = receiptHandler(res)
			}
			r.With(gate.Protect(res)).Handle(rc.Path, content)
		}

		// Queue administration only exists behind a configured admin key.
		if handler.queue != nil && cfg.Server.AdminAPIKey != "" {
			r.Route("/admin/webhooks", func(ar chi.Router) {
				ar.Use(adminAuth(cfg.Server.AdminAPIKey))
				ar.Get("/", handler.listWebhooks)
				ar.Post("/{id}/retry", handler.retryWebhook)
				ar.Delete("/{id}", handler.deleteWebhook)
			})
		}
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

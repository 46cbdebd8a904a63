package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/latchpay/server/internal/logger"
	"github.com/latchpay/server/internal/money"
	"github.com/latchpay/server/internal/paywall"
	"github.com/latchpay/server/pkg/responders"
)

var serverStartTime = time.Now()

func (h handlers) health(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"network":        h.cfg.Solana.Network,
		"uptime_seconds": int(time.Since(serverStartTime).Seconds()),
	})
}

// receiptHandler is the default content behind a gated route: it echoes the
// verified payment so integrators can see the gate working before plugging in
// their own handlers.
func receiptHandler(res paywall.Resource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payment, ok := paywall.PaymentFromContext(r.Context())
		if !ok {
			responders.Error(w, http.StatusInternalServerError, "missing_payment", "payment not found in request context")
			return
		}
		responders.JSON(w, http.StatusOK, map[string]any{
			"resource":    res.Path,
			"description": res.Description,
			"payment": map[string]any{
				"payer":     payment.Payer,
				"amountUsd": money.FormatMicro(payment.AmountMicro),
				"signature": payment.Signature,
				"slot":      payment.Slot,
			},
		})
	})
}

func (h handlers) listWebhooks(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queue.List(r.Context(), 100)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("admin.webhook_list_failed")
		responders.Error(w, http.StatusInternalServerError, "queue_error", "failed to list webhook queue")
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// retryWebhook pulls a queued entry forward so the dispatcher picks it up on
// the next drain instead of waiting out its backoff.
func (h handlers) retryWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.queue.List(r.Context(), 1000)
	if err != nil {
		responders.Error(w, http.StatusInternalServerError, "queue_error", "failed to read webhook queue")
		return
	}
	for _, entry := range entries {
		if entry.ID != id {
			continue
		}
		entry.NextAttempt = time.Now()
		if err := h.queue.Retry(r.Context(), entry); err != nil {
			responders.Error(w, http.StatusInternalServerError, "queue_error", "failed to reschedule webhook")
			return
		}
		responders.JSON(w, http.StatusOK, map[string]any{"rescheduled": id})
		return
	}
	responders.Error(w, http.StatusNotFound, "not_found", "webhook entry not found")
}

func (h handlers) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		responders.Error(w, http.StatusBadRequest, "invalid_request", "webhook id is required")
		return
	}
	if err := h.queue.Remove(r.Context(), id); err != nil {
		responders.Error(w, http.StatusNotFound, "not_found", "webhook entry not found")
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{"removed": id})
}

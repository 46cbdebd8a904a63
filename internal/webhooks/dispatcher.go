package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/latchpay/server/internal/httputil"
	"github.com/latchpay/server/internal/metrics"
	"github.com/latchpay/server/pkg/x402"
)

// attemptTimeout bounds a single delivery POST.
const attemptTimeout = 10 * time.Second

// Config describes where deliveries go and how they are signed.
type Config struct {
	URL    string
	Secret string
}

// Dispatcher drains the queue from a single loop goroutine, signing and
// POSTing each entry and classifying the response into success, retry, or
// dead-letter.
type Dispatcher struct {
	queue        Queue
	cfg          Config
	policy       RetryPolicy
	httpClient   *http.Client
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
	now          func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(policy RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.policy = policy
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatcherMetrics records delivery outcomes.
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithPollInterval changes how often the queue is drained.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithHTTPClient substitutes the outbound client, for tests.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.httpClient = client
	}
}

// NewDispatcher builds a dispatcher over the queue.
func NewDispatcher(queue Queue, cfg Config, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:        queue,
		cfg:          cfg,
		policy:       DefaultRetryPolicy(),
		httpClient:   httputil.NewClient(attemptTimeout),
		logger:       zerolog.Nop(),
		pollInterval: 5 * time.Second,
		now:          time.Now,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EnqueueVerified queues a payment.verified event for delivery. A no-op when
// no webhook URL is configured.
func (d *Dispatcher) EnqueueVerified(ctx context.Context, resource string, payment x402.Verification) error {
	if d.cfg.URL == "" {
		return nil
	}

	event := Event{
		EventType: EventPaymentVerified,
		Resource:  resource,
		Payment:   payment,
	}
	PrepareEvent(&event)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	id, err := d.queue.Enqueue(ctx, Entry{
		URL:         d.cfg.URL,
		Payload:     payload,
		EventType:   event.EventType,
		MaxAttempts: d.policy.MaxAttempts,
		NextAttempt: d.now().UTC(),
		CreatedAt:   d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("enqueue webhook: %w", err)
	}

	d.logger.Debug().
		Str("webhook_id", id).
		Str("event_id", event.EventID).
		Str("resource", resource).
		Msg("webhooks.enqueued")
	return nil
}

// Start launches the delivery loop.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Stop halts the loop and waits for the in-flight attempt to finish.
func (d *Dispatcher) Stop() {
	close(d.stopChan)
	<-d.doneChan
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.logger.Info().
		Dur("poll_interval", d.pollInterval).
		Msg("webhooks.dispatcher_started")

	for {
		select {
		case <-d.stopChan:
			d.logger.Info().Msg("webhooks.dispatcher_stopping")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain delivers every ready entry before going back to sleep.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case <-d.stopChan:
			return
		default:
		}

		entry, err := d.queue.Dequeue(ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("webhooks.dequeue_failed")
			return
		}
		if entry == nil {
			return
		}
		d.deliver(ctx, *entry)

		if d.metrics != nil {
			if n, err := d.queue.Size(ctx); err == nil {
				d.metrics.WebhookQueueDepth.Set(float64(n))
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, entry Entry) {
	entry.Attempts++

	start := d.now()
	reqCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	status, err := d.post(reqCtx, entry)
	cancel()
	elapsed := d.now().Sub(start)

	switch classify(status, err) {
	case deliveryOK:
		if removeErr := d.queue.Remove(ctx, entry.ID); removeErr != nil {
			d.logger.Error().Err(removeErr).Str("webhook_id", entry.ID).Msg("webhooks.remove_failed")
		}
		d.metrics.ObserveWebhook(entry.EventType, "success", elapsed)
		d.logger.Info().
			Str("webhook_id", entry.ID).
			Str("event_type", entry.EventType).
			Int("attempts", entry.Attempts).
			Dur("duration", elapsed).
			Msg("webhooks.delivered")

	case deliveryPermanentFailure:
		// The receiver rejected the payload; retrying the same body cannot
		// succeed.
		if removeErr := d.queue.Remove(ctx, entry.ID); removeErr != nil {
			d.logger.Error().Err(removeErr).Str("webhook_id", entry.ID).Msg("webhooks.remove_failed")
		}
		d.metrics.ObserveWebhook(entry.EventType, "rejected", elapsed)
		if d.metrics != nil {
			d.metrics.WebhookDLQTotal.WithLabelValues(entry.EventType, "rejected").Inc()
		}
		d.logger.Warn().
			Str("webhook_id", entry.ID).
			Int("status", status).
			Msg("webhooks.rejected_permanently")

	case deliveryRetry:
		d.metrics.ObserveWebhook(entry.EventType, "failed", elapsed)
		d.retryOrDrop(ctx, entry, status, err)
	}
}

func (d *Dispatcher) retryOrDrop(ctx context.Context, entry Entry, status int, deliveryErr error) {
	lastError := fmt.Sprintf("status %d", status)
	if deliveryErr != nil {
		lastError = deliveryErr.Error()
	}

	if entry.Attempts >= entry.MaxAttempts {
		if removeErr := d.queue.Remove(ctx, entry.ID); removeErr != nil {
			d.logger.Error().Err(removeErr).Str("webhook_id", entry.ID).Msg("webhooks.remove_failed")
		}
		if d.metrics != nil {
			d.metrics.WebhookDLQTotal.WithLabelValues(entry.EventType, "exhausted").Inc()
		}
		d.logger.Warn().
			Str("webhook_id", entry.ID).
			Str("event_type", entry.EventType).
			Int("attempts", entry.Attempts).
			Str("last_error", lastError).
			Msg("webhooks.dropped_after_retries")
		return
	}

	entry.LastError = lastError
	entry.NextAttempt = d.now().Add(d.policy.Delay(entry.Attempts))
	if err := d.queue.Retry(ctx, entry); err != nil {
		d.logger.Error().Err(err).Str("webhook_id", entry.ID).Msg("webhooks.reschedule_failed")
		return
	}
	if d.metrics != nil {
		d.metrics.WebhookRetriesTotal.WithLabelValues(entry.EventType).Inc()
	}
	d.logger.Warn().
		Str("webhook_id", entry.ID).
		Int("attempts", entry.Attempts).
		Time("next_attempt", entry.NextAttempt).
		Str("last_error", lastError).
		Msg("webhooks.retry_scheduled")
}

// post sends the entry and returns the HTTP status (0 on transport error).
func (d *Dispatcher) post(ctx context.Context, entry Entry) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, entry.URL, bytes.NewReader(entry.Payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, SignatureValue(d.cfg.Secret, entry.Payload))
	req.Header.Set(TimestampHeader, strconv.FormatInt(d.now().UnixMilli(), 10))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

type deliveryOutcome int

const (
	deliveryOK deliveryOutcome = iota
	deliveryRetry
	deliveryPermanentFailure
)

// classify maps an attempt result to its outcome: 2xx done, 4xx permanent
// except 408 and 429, everything else (5xx, timeouts, network errors) worth
// retrying.
func classify(status int, err error) deliveryOutcome {
	if err != nil {
		return deliveryRetry
	}
	switch {
	case status >= 200 && status < 300:
		return deliveryOK
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return deliveryRetry
	case status >= 400 && status < 500:
		return deliveryPermanentFailure
	default:
		return deliveryRetry
	}
}

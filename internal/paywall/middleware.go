package paywall

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/latchpay/server/internal/errors"
	"github.com/latchpay/server/internal/logger"
	"github.com/latchpay/server/pkg/responders"
	"github.com/latchpay/server/pkg/x402"
)

type contextKey string

const contextKeyPayment contextKey = "paywall.payment"

// PaymentVerifier checks a transaction signature against the challenge terms.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, signature string, recipient solana.PublicKey, requiredMicro int64) (x402.Verification, error)
}

// Notifier receives verified payments for async delivery. Delivery failures
// never block the paying request.
type Notifier interface {
	EnqueueVerified(ctx context.Context, resource string, payment x402.Verification) error
}

// Middleware gates a resource behind an x402 challenge: requests without a
// valid X-PAYMENT header get a 402 with payment requirements, requests with
// one get verified on-chain before the handler runs.
type Middleware struct {
	generator *Generator
	verifier  PaymentVerifier
	notifier  Notifier
}

// NewMiddleware wires a challenge generator to a verifier. notifier may be
// nil when webhooks are not configured.
func NewMiddleware(generator *Generator, verifier PaymentVerifier, notifier Notifier) *Middleware {
	return &Middleware{
		generator: generator,
		verifier:  verifier,
		notifier:  notifier,
	}
}

// Protect wraps next with payment enforcement for the given resource.
func (m *Middleware) Protect(res Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.FromContext(ctx)

			header := strings.TrimSpace(r.Header.Get(x402.PaymentHeader))
			if header == "" {
				m.challenge(w, res, "")
				return
			}

			proof, err := x402.DecodeProof(header)
			if err != nil {
				log.Debug().Err(err).Str("resource", res.Path).Msg("paywall.invalid_header")
				m.challenge(w, res, verificationMessage(err))
				return
			}
			if proof.Network != m.generator.Network() {
				m.challenge(w, res, "payment network "+proof.Network+" does not match challenge network "+m.generator.Network())
				return
			}

			requirements, err := m.generator.Generate(res)
			if err != nil {
				log.Error().Err(err).Str("resource", res.Path).Msg("paywall.requirements_failed")
				responders.Error(w, http.StatusInternalServerError, string(errors.ErrCodeVerificationError), "challenge generation failed")
				return
			}
			requiredMicro, err := strconv.ParseInt(requirements.MaxAmountRequired, 10, 64)
			if err != nil {
				responders.Error(w, http.StatusInternalServerError, string(errors.ErrCodeVerificationError), "invalid challenge amount")
				return
			}

			payment, err := m.verifier.VerifyPayment(ctx, proof.Payload.Signature, m.generator.RecipientTokenAccount(), requiredMicro)
			if err != nil {
				m.refuse(w, log.With().Str("resource", res.Path).Logger(), res, err)
				return
			}
			payment.Resource = res.Path

			log.Info().
				Str("resource", res.Path).
				Str("payer", payment.Payer).
				Str("signature", logger.TruncateAddress(payment.Signature)).
				Int64("amount_micro", payment.AmountMicro).
				Msg("paywall.payment_accepted")

			if m.notifier != nil {
				if err := m.notifier.EnqueueVerified(ctx, res.Path, payment); err != nil {
					log.Error().Err(err).Str("resource", res.Path).Msg("paywall.webhook_enqueue_failed")
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKeyPayment, payment)))
		})
	}
}

// challenge writes the 402 body with fresh payment requirements.
func (m *Middleware) challenge(w http.ResponseWriter, res Resource, errMessage string) {
	body, err := m.generator.Challenge(res, errMessage)
	if err != nil {
		responders.Error(w, http.StatusInternalServerError, string(errors.ErrCodeVerificationError), "challenge generation failed")
		return
	}
	responders.JSON(w, http.StatusPaymentRequired, body)
}

// refuse maps a verification failure to its HTTP shape: client-correctable
// codes get a fresh 402 challenge, infrastructure failures get a 500.
func (m *Middleware) refuse(w http.ResponseWriter, log zerolog.Logger, res Resource, err error) {
	var verr x402.VerificationError
	if !stderrors.As(err, &verr) {
		log.Error().Err(err).Msg("paywall.verification_error")
		responders.Error(w, http.StatusInternalServerError, string(errors.ErrCodeVerificationError), "payment verification failed")
		return
	}

	status := verr.Code.HTTPStatus()
	if status == http.StatusPaymentRequired {
		log.Info().Str("code", string(verr.Code)).Str("reason", verr.Message).Msg("paywall.payment_refused")
		m.challenge(w, res, verr.Message)
		return
	}

	log.Error().Err(err).Str("code", string(verr.Code)).Msg("paywall.verification_failed")
	responders.Error(w, status, string(verr.Code), verr.Message)
}

func verificationMessage(err error) string {
	var verr x402.VerificationError
	if stderrors.As(err, &verr) {
		return verr.Message
	}
	return err.Error()
}

// PaymentFromContext retrieves the verified payment placed by Protect, for
// handlers that want to log or echo it.
func PaymentFromContext(ctx context.Context) (x402.Verification, bool) {
	payment, ok := ctx.Value(contextKeyPayment).(x402.Verification)
	return payment, ok
}

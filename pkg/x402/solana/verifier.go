package solana

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/latchpay/server/internal/cache"
	"github.com/latchpay/server/internal/errors"
	"github.com/latchpay/server/internal/logger"
	"github.com/latchpay/server/internal/metrics"
	"github.com/latchpay/server/internal/money"
	"github.com/latchpay/server/pkg/x402"
)

// Verifier checks payment proofs against the ledger and guards against
// signature replay through the verification cache.
type Verifier struct {
	ledger        LedgerClient
	cache         cache.Store
	network       string
	mint          solana.PublicKey
	maxPaymentAge time.Duration
	metrics       *metrics.Metrics
	now           func() time.Time
	locks         sigLocks
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithMaxPaymentAge overrides the transaction freshness window.
func WithMaxPaymentAge(age time.Duration) VerifierOption {
	return func(v *Verifier) {
		if age > 0 {
			v.maxPaymentAge = age
		}
	}
}

// WithVerifierMetrics records verification outcomes.
func WithVerifierMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier builds a verifier for the given network. The USDC mint is
// fixed by the network.
func NewVerifier(ledger LedgerClient, store cache.Store, network string, opts ...VerifierOption) (*Verifier, error) {
	mintAddr, err := x402.MintForNetwork(network)
	if err != nil {
		return nil, err
	}
	mint, err := solana.PublicKeyFromBase58(mintAddr)
	if err != nil {
		return nil, fmt.Errorf("parse mint address: %w", err)
	}

	v := &Verifier{
		ledger:        ledger,
		cache:         store,
		network:       network,
		mint:          mint,
		maxPaymentAge: x402.DefaultMaxPaymentAge,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Network returns the network this verifier checks against.
func (v *Verifier) Network() string {
	return v.network
}

// Mint returns the token mint this verifier accepts.
func (v *Verifier) Mint() solana.PublicKey {
	return v.mint
}

// VerifyPayment checks that signature references a fresh, successful
// transaction carrying a single USDC transfer of at least requiredMicro into
// recipient, and consumes the signature on success. Concurrent calls for the
// same signature are serialized so exactly one can succeed.
func (v *Verifier) VerifyPayment(ctx context.Context, signature string, recipient solana.PublicKey, requiredMicro int64) (x402.Verification, error) {
	start := v.now()
	result, err := v.verify(ctx, signature, recipient, requiredMicro)

	outcome := "ok"
	if err != nil {
		var verr x402.VerificationError
		if stderrors.As(err, &verr) {
			outcome = string(verr.Code)
		} else {
			outcome = string(errors.ErrCodeVerificationError)
		}
	}
	v.metrics.ObserveVerification(outcome, v.network, v.now().Sub(start))
	if err == nil && v.metrics != nil {
		v.metrics.PaymentAmountTotal.WithLabelValues(v.network).Add(float64(result.AmountMicro))
	}
	return result, err
}

func (v *Verifier) verify(ctx context.Context, signature string, recipient solana.PublicKey, requiredMicro int64) (x402.Verification, error) {
	if requiredMicro <= 0 {
		return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeVerificationError,
			fmt.Errorf("required amount must be positive, got %d", requiredMicro))
	}

	unlock := v.locks.lock(signature)
	defer unlock()

	log := logger.FromContext(ctx)

	// Replay check first: a cached success means the signature is spent, and
	// a cached deterministic failure spares an RPC round trip. Retryable
	// failures should never have been cached, but skip them defensively.
	if verdict, ok, err := v.cache.Get(ctx, signature); err != nil {
		log.Warn().Err(err).Msg("verify.cache_lookup_failed")
	} else if ok {
		if verdict.OK {
			v.observeCacheHit("success")
			return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeReplayAttack,
				fmt.Errorf("signature already consumed at %s", verdict.CachedAt.Format(time.RFC3339)))
		}
		if verdict.Code.IsDeterministic() {
			v.observeCacheHit(string(verdict.Code))
			return x402.Verification{}, x402.VerificationError{
				Code:    verdict.Code,
				Message: verdict.Message,
			}
		}
	} else if v.metrics != nil {
		v.metrics.CacheMissesTotal.Inc()
	}

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeInvalidHeader,
			fmt.Errorf("parse signature: %w", err))
	}

	tx, err := v.ledger.GetTransaction(ctx, sig)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			// Short TTL: the transaction may simply not have propagated yet.
			verr := x402.NewVerificationError(errors.ErrCodeTxNotFound, err)
			v.cachePut(ctx, signature, cache.Failure(verr.Code, verr.Message), x402.NotFoundCacheTTL)
			return x402.Verification{}, verr
		}
		return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeRPCError, err)
	}

	if tx.Meta == nil {
		return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeVerificationError,
			fmt.Errorf("transaction has no metadata"))
	}
	if tx.Meta.Err != nil {
		verr := x402.NewVerificationError(errors.ErrCodeTxFailed,
			fmt.Errorf("transaction failed on-chain: %v", tx.Meta.Err))
		v.cachePut(ctx, signature, cache.Failure(verr.Code, verr.Message), v.successTTL())
		return x402.Verification{}, verr
	}

	if tx.BlockTime == nil {
		return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeVerificationError,
			fmt.Errorf("transaction has no block time"))
	}
	blockTime := tx.BlockTime.Time()
	if age := v.now().Sub(blockTime); age > v.maxPaymentAge {
		return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeTxExpired,
			fmt.Errorf("transaction is %s old, limit %s", age.Truncate(time.Second), v.maxPaymentAge))
	}

	decoded, err := tx.Transaction.GetTransaction()
	if err != nil {
		return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeVerificationError,
			fmt.Errorf("decode transaction: %w", err))
	}

	transfers := ParseTransfers(&decoded.Message, tx.Meta)
	mintTransfers := ExtractMintTransfers(transfers, v.mint)
	if len(mintTransfers) == 0 {
		verr := x402.NewVerificationError(errors.ErrCodeNoTokenTransfer,
			fmt.Errorf("no transfer of mint %s in transaction", v.mint))
		v.cachePut(ctx, signature, cache.Failure(verr.Code, verr.Message), v.successTTL())
		return x402.Verification{}, verr
	}

	match, ok := FindMatching(mintTransfers, recipient, uint64(requiredMicro))
	if !ok {
		// Depends on the recipient and price of this request, so never
		// cached: the same signature may satisfy a different challenge.
		var found uint64
		for _, t := range FindByDestination(mintTransfers, recipient) {
			if t.Amount > found {
				found = t.Amount
			}
		}
		return x402.Verification{}, x402.NewVerificationError(errors.ErrCodeTransferMismatch,
			fmt.Errorf("required %d micro to %s, best transfer found %d",
				requiredMicro, logger.TruncateAddress(recipient.String()), found))
	}

	verification := x402.Verification{
		Payer:       match.Authority.String(),
		AmountMicro: int64(match.Amount),
		AmountUSD:   money.MicroToUsd(int64(match.Amount)),
		Signature:   signature,
		Slot:        tx.Slot,
		BlockTime:   blockTime,
	}

	v.cachePut(ctx, signature, cache.Success(verification), v.successTTL())

	log.Info().
		Str("signature", logger.TruncateAddress(signature)).
		Str("payer", logger.TruncateAddress(verification.Payer)).
		Int64("amount_micro", verification.AmountMicro).
		Uint64("slot", verification.Slot).
		Msg("verify.payment_accepted")

	return verification, nil
}

// successTTL keeps consumed signatures cached at least as long as they could
// still pass the freshness check.
func (v *Verifier) successTTL() time.Duration {
	if v.maxPaymentAge > x402.MinSuccessCacheTTL {
		return v.maxPaymentAge
	}
	return x402.MinSuccessCacheTTL
}

func (v *Verifier) cachePut(ctx context.Context, sig string, verdict cache.Verdict, ttl time.Duration) {
	if err := v.cache.Put(ctx, sig, verdict, ttl); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("verify.cache_store_failed")
	}
}

func (v *Verifier) observeCacheHit(kind string) {
	if v.metrics != nil {
		v.metrics.CacheHitsTotal.WithLabelValues(kind).Inc()
	}
}

// sigLocks serializes verification per signature so two requests presenting
// the same payment cannot both pass between cache check and cache write.
type sigLocks struct {
	mu    sync.Mutex
	locks map[string]*sigLock
}

type sigLock struct {
	mu   sync.Mutex
	refs int
}

func (s *sigLocks) lock(sig string) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sigLock)
	}
	entry, ok := s.locks[sig]
	if !ok {
		entry = &sigLock{}
		s.locks[sig] = entry
	}
	entry.refs++
	s.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		s.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(s.locks, sig)
		}
		s.mu.Unlock()
	}
}

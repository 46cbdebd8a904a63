// Package solana verifies x402 payment proofs against the Solana ledger.
package solana

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/latchpay/server/internal/circuitbreaker"
	"github.com/latchpay/server/internal/metrics"
	"github.com/latchpay/server/internal/rpcutil"
)

// ErrNotFound is returned when the ledger has no record of the signature at
// the configured commitment level.
var ErrNotFound = errors.New("transaction not found")

// LedgerClient fetches confirmed transactions. The verifier only reads; it
// never signs or submits.
type LedgerClient interface {
	GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error)
}

// RPCLedgerClient implements LedgerClient over a Solana JSON-RPC node with
// bounded retry and a circuit breaker.
type RPCLedgerClient struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	breaker    *circuitbreaker.Manager
	metrics    *metrics.Metrics
}

// RPCOption customizes an RPCLedgerClient.
type RPCOption func(*RPCLedgerClient)

// WithCommitment overrides the default confirmed commitment level.
func WithCommitment(commitment rpc.CommitmentType) RPCOption {
	return func(c *RPCLedgerClient) {
		c.commitment = commitment
	}
}

// WithBreaker routes RPC calls through the ledger circuit breaker.
func WithBreaker(breaker *circuitbreaker.Manager) RPCOption {
	return func(c *RPCLedgerClient) {
		c.breaker = breaker
	}
}

// WithRPCMetrics records call counts and latency.
func WithRPCMetrics(m *metrics.Metrics) RPCOption {
	return func(c *RPCLedgerClient) {
		c.metrics = m
	}
}

// NewRPCLedgerClient connects to the given RPC endpoint.
func NewRPCLedgerClient(endpoint string, opts ...RPCOption) *RPCLedgerClient {
	c := &RPCLedgerClient{
		rpc:        rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTransaction fetches the transaction in base64 encoding, retrying
// transient failures. Not-found is not retried and does not count against
// the circuit breaker.
func (c *RPCLedgerClient) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	start := time.Now()
	result, err := rpcutil.WithRetry(ctx, func() (*rpc.GetTransactionResult, error) {
		return c.fetch(ctx, sig, opts)
	})
	c.metrics.ObserveRPCCall("getTransaction", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNotFound
	}
	return result, nil
}

func (c *RPCLedgerClient) fetch(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	call := func() (interface{}, error) {
		result, err := c.rpc.GetTransaction(ctx, sig, opts)
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				// Absence is an answer, not a node failure.
				return (*rpc.GetTransactionResult)(nil), nil
			}
			return nil, err
		}
		return result, nil
	}

	var out interface{}
	var err error
	if c.breaker != nil {
		out, err = c.breaker.Execute(circuitbreaker.ServiceLedgerRPC, call)
	} else {
		out, err = call()
	}
	if err != nil {
		return nil, err
	}
	result, _ := out.(*rpc.GetTransactionResult)
	return result, nil
}

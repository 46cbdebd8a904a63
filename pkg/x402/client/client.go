// Package client implements an HTTP client that settles x402 payment
// challenges automatically: on a 402 it pays the quoted amount on Solana and
// retries the request once with the payment proof attached.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/latchpay/server/internal/errors"
	"github.com/latchpay/server/pkg/x402"
)

// maxChallengeBody bounds how much of a 402 response body is read.
const maxChallengeBody = 1 << 20

// Client wraps an http.Client with x402 payment settlement.
type Client struct {
	httpClient *http.Client
	sender     TransferSender
	network    string
	logger     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClientLogger sets the client's logger.
func WithClientLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds a paying client for the given network. Challenges quoting other
// networks are refused rather than paid.
func New(sender TransferSender, network string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sender:     sender,
		network:    network,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch issues a GET to url, paying a 402 challenge if one comes back.
func (c *Client) Fetch(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do executes the request. A non-402 response is returned as-is. On a 402 the
// client selects a supported payment option, transfers the quoted amount, and
// retries the request exactly once with the proof in the X-PAYMENT header.
// The payment is never repeated: if the retried request fails, the caller
// holds a spent signature and the server's final answer.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var bodyCopy []byte
	if req.Body != nil {
		var err error
		bodyCopy, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyCopy))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, err := readChallenge(resp)
	if err != nil {
		return nil, err
	}

	header, err := c.settle(req.Context(), challenge)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if bodyCopy != nil {
		retry.Body = io.NopCloser(bytes.NewReader(bodyCopy))
	}
	retry.Header.Set(x402.PaymentHeader, header)
	return c.httpClient.Do(retry)
}

// settle pays the first supported option in the challenge and returns the
// encoded proof header.
func (c *Client) settle(ctx context.Context, challenge x402.PaymentRequired) (string, error) {
	req, err := c.selectRequirements(challenge)
	if err != nil {
		return "", err
	}

	amount, err := strconv.ParseUint(req.MaxAmountRequired, 10, 64)
	if err != nil {
		return "", x402.NewVerificationError(errors.ErrCodeUnsupportedRequirements,
			fmt.Errorf("invalid amount %q", req.MaxAmountRequired))
	}
	dest, err := solana.PublicKeyFromBase58(req.PayTo.Address)
	if err != nil {
		return "", x402.NewVerificationError(errors.ErrCodeUnsupportedRequirements,
			fmt.Errorf("invalid payTo address %q: %w", req.PayTo.Address, err))
	}
	mint, err := solana.PublicKeyFromBase58(req.PayTo.Asset)
	if err != nil {
		return "", x402.NewVerificationError(errors.ErrCodeUnsupportedRequirements,
			fmt.Errorf("invalid asset %q: %w", req.PayTo.Asset, err))
	}
	decimals := uint8(x402.USDCDecimals)
	if raw, ok := req.Extra["decimals"]; ok {
		if parsed, err := strconv.ParseUint(raw, 10, 8); err == nil {
			decimals = uint8(parsed)
		}
	}

	balance, err := c.sender.Balance(ctx, mint)
	if err != nil {
		return "", fmt.Errorf("check balance: %w", err)
	}
	if balance < amount {
		return "", x402.NewVerificationError(errors.ErrCodeInsufficientBalance,
			fmt.Errorf("balance %d below required %d", balance, amount))
	}

	timeout := x402.DefaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	payCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.Info().
		Str("resource", req.Resource).
		Uint64("amount", amount).
		Str("pay_to", req.PayTo.Address).
		Msg("client.paying_challenge")

	signature, err := c.sender.SendToken(payCtx, dest, mint, amount, decimals)
	if err != nil {
		if payCtx.Err() != nil {
			return "", x402.NewVerificationError(errors.ErrCodePaymentTimeout, err)
		}
		return "", fmt.Errorf("send payment: %w", err)
	}

	c.logger.Info().
		Str("resource", req.Resource).
		Str("signature", signature).
		Msg("client.payment_confirmed")

	return x402.EncodeProof(x402.PaymentProof{
		X402Version: x402.ProtocolVersion,
		Scheme:      x402.SchemeExact,
		Network:     req.Network,
		Payload:     x402.HeaderPayload{Signature: signature},
	})
}

// selectRequirements picks the first accepts entry this client can satisfy.
func (c *Client) selectRequirements(challenge x402.PaymentRequired) (x402.PaymentRequirements, error) {
	for _, req := range challenge.Accepts {
		if req.Scheme != x402.SchemeExact {
			continue
		}
		if !x402.IsSupportedNetwork(req.Network) {
			continue
		}
		if c.network != "" && req.Network != c.network {
			continue
		}
		return req, nil
	}
	return x402.PaymentRequirements{}, x402.NewVerificationError(errors.ErrCodeUnsupportedRequirements,
		fmt.Errorf("no supported option among %d offered", len(challenge.Accepts)))
}

func readChallenge(resp *http.Response) (x402.PaymentRequired, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChallengeBody))
	if err != nil {
		return x402.PaymentRequired{}, fmt.Errorf("read challenge body: %w", err)
	}
	return x402.DecodeRequired(body)
}

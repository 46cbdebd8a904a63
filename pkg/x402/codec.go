package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/latchpay/server/internal/errors"
)

// EncodeRequired serializes a 402 challenge body.
func EncodeRequired(pr PaymentRequired) ([]byte, error) {
	return json.Marshal(pr)
}

// DecodeRequired parses and validates a 402 challenge body.
func DecodeRequired(data []byte) (PaymentRequired, error) {
	var pr PaymentRequired
	if err := json.Unmarshal(data, &pr); err != nil {
		return PaymentRequired{}, fmt.Errorf("parse challenge body: %w", err)
	}
	if pr.X402Version != ProtocolVersion {
		return PaymentRequired{}, fmt.Errorf("unsupported x402 version %d", pr.X402Version)
	}
	if len(pr.Accepts) == 0 {
		return PaymentRequired{}, fmt.Errorf("challenge has no accepts entries")
	}
	for i, req := range pr.Accepts {
		if err := validateRequirements(req); err != nil {
			return PaymentRequired{}, fmt.Errorf("accepts[%d]: %w", i, err)
		}
	}
	return pr, nil
}

// EncodeProof serializes a payment proof into X-PAYMENT header form:
// base64(JSON).
func EncodeProof(proof PaymentProof) (string, error) {
	data, err := json.Marshal(proof)
	if err != nil {
		return "", fmt.Errorf("marshal payment proof: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeProof parses and validates an X-PAYMENT header. Every failure maps
// to INVALID_HEADER: a client that sent a malformed proof must fix the
// proof, not retry it.
func DecodeProof(header string) (PaymentProof, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return PaymentProof{}, NewVerificationError(errors.ErrCodeInvalidHeader,
			fmt.Errorf("empty payment header"))
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(raw)
		if err != nil {
			return PaymentProof{}, NewVerificationError(errors.ErrCodeInvalidHeader,
				fmt.Errorf("decode base64: %w", err))
		}
	}

	var proof PaymentProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return PaymentProof{}, NewVerificationError(errors.ErrCodeInvalidHeader,
			fmt.Errorf("parse payment payload: %w", err))
	}

	if proof.X402Version != ProtocolVersion {
		return PaymentProof{}, NewVerificationError(errors.ErrCodeInvalidHeader,
			fmt.Errorf("unsupported x402 version %d", proof.X402Version))
	}
	if proof.Scheme != SchemeExact {
		return PaymentProof{}, NewVerificationError(errors.ErrCodeInvalidHeader,
			fmt.Errorf("unsupported scheme %q", proof.Scheme))
	}
	if !IsSupportedNetwork(proof.Network) {
		return PaymentProof{}, NewVerificationError(errors.ErrCodeInvalidHeader,
			fmt.Errorf("unsupported network %q", proof.Network))
	}
	sig := proof.Payload.Signature
	if len(sig) < 64 || len(sig) > 128 {
		return PaymentProof{}, NewVerificationError(errors.ErrCodeInvalidHeader,
			fmt.Errorf("signature length %d outside 64-128", len(sig)))
	}

	return proof, nil
}

func validateRequirements(req PaymentRequirements) error {
	if req.Scheme != SchemeExact {
		return fmt.Errorf("unsupported scheme %q", req.Scheme)
	}
	if !strings.HasPrefix(req.Network, "solana-") {
		return fmt.Errorf("unsupported network %q", req.Network)
	}
	amount, err := strconv.ParseInt(req.MaxAmountRequired, 10, 64)
	if err != nil {
		return fmt.Errorf("amount %q is not an integer: %w", req.MaxAmountRequired, err)
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	if req.PayTo.Address == "" {
		return fmt.Errorf("missing payTo address")
	}
	if req.PayTo.Asset == "" {
		return fmt.Errorf("missing payTo asset mint")
	}
	return nil
}

package x402

import (
	"fmt"
	"strings"
	"time"
)

// Protocol constants for the x402 payment challenge flow.
// Reference: https://github.com/coinbase/x402
const (
	// ProtocolVersion is the only x402 version this implementation speaks.
	ProtocolVersion = 1

	// SchemeExact requires the payment to transfer at least the quoted
	// amount in a single SPL transfer.
	SchemeExact = "exact"

	// PaymentHeader carries the base64-encoded payment proof on retried
	// requests.
	PaymentHeader = "X-PAYMENT"
)

// Supported networks. The `solana-` prefix is the x402 network namespace;
// ClusterName strips it for RPC-facing use.
const (
	NetworkDevnet  = "solana-devnet"
	NetworkMainnet = "solana-mainnet-beta"
)

// Canonical USDC mints per network.
const (
	USDCMintDevnet  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	USDCMintMainnet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	// USDCDecimals is the USDC token decimal count on both networks.
	USDCDecimals = 6
)

// Defaults applied when a challenge or verification option is left unset.
const (
	// DefaultTimeout is how long a challenge stays payable.
	DefaultTimeout = 300 * time.Second

	// DefaultMaxPaymentAge is the freshness window for submitted
	// transactions.
	DefaultMaxPaymentAge = 300 * time.Second

	// MinSuccessCacheTTL is the floor for how long a consumed signature
	// stays in the replay cache.
	MinSuccessCacheTTL = 600 * time.Second

	// NotFoundCacheTTL keeps TX_NOT_FOUND verdicts short-lived so a
	// transaction still propagating can succeed on a later attempt.
	NotFoundCacheTTL = 10 * time.Second
)

// IsSupportedNetwork reports whether network names a Solana cluster this
// implementation can verify against.
func IsSupportedNetwork(network string) bool {
	return network == NetworkDevnet || network == NetworkMainnet
}

// MintForNetwork returns the canonical USDC mint address for the network.
func MintForNetwork(network string) (string, error) {
	switch network {
	case NetworkDevnet:
		return USDCMintDevnet, nil
	case NetworkMainnet:
		return USDCMintMainnet, nil
	default:
		return "", fmt.Errorf("unsupported network %q", network)
	}
}

// ClusterName strips the x402 `solana-` namespace prefix, leaving the bare
// cluster name ("devnet", "mainnet-beta").
func ClusterName(network string) string {
	return strings.TrimPrefix(network, "solana-")
}

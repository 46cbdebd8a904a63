package config

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/latchpay/server/pkg/x402"
)

// finalize fills remaining defaults and rejects configurations the server
// cannot run with.
func (c *Config) finalize() error {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if !x402.IsSupportedNetwork(c.Solana.Network) {
		return fmt.Errorf("solana.network: unsupported network %q", c.Solana.Network)
	}
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required")
	}
	if c.Solana.RecipientWallet == "" {
		return fmt.Errorf("solana.recipient_wallet is required")
	}
	if _, err := solana.PublicKeyFromBase58(c.Solana.RecipientWallet); err != nil {
		return fmt.Errorf("solana.recipient_wallet: %w", err)
	}
	switch c.Solana.Commitment {
	case "", "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("solana.commitment: unknown level %q", c.Solana.Commitment)
	}
	if c.Solana.MaxPaymentAge.Duration <= 0 {
		c.Solana.MaxPaymentAge = Duration{Duration: x402.DefaultMaxPaymentAge}
	}
	if c.Solana.ChallengeTimeout.Duration <= 0 {
		c.Solana.ChallengeTimeout = Duration{Duration: x402.DefaultTimeout}
	}

	switch c.Cache.Backend {
	case "", "memory":
		c.Cache.Backend = "memory"
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend)
	}

	switch c.Webhooks.Backend {
	case "", "memory":
		c.Webhooks.Backend = "memory"
	case "redis":
		if c.Webhooks.RedisURL == "" {
			return fmt.Errorf("webhooks.redis_url is required for the redis backend")
		}
	case "postgres":
		if c.Webhooks.PostgresURL == "" {
			return fmt.Errorf("webhooks.postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("webhooks.backend: unknown backend %q", c.Webhooks.Backend)
	}
	if c.Webhooks.URL != "" && c.Webhooks.Secret == "" {
		return fmt.Errorf("webhooks.secret is required when webhooks.url is set")
	}
	switch c.Webhooks.Retry.Strategy {
	case "", "exponential", "linear":
	default:
		return fmt.Errorf("webhooks.retry.strategy: unknown strategy %q", c.Webhooks.Retry.Strategy)
	}
	if c.Webhooks.Retry.MaxAttempts <= 0 {
		c.Webhooks.Retry.MaxAttempts = 3
	}

	seen := make(map[string]bool, len(c.Resources))
	for i := range c.Resources {
		res := &c.Resources[i]
		if res.Path == "" || !strings.HasPrefix(res.Path, "/") {
			return fmt.Errorf("resources[%d].path must start with /", i)
		}
		if seen[res.Path] {
			return fmt.Errorf("resources[%d]: duplicate path %q", i, res.Path)
		}
		seen[res.Path] = true
		if res.PriceUSD <= 0 {
			return fmt.Errorf("resources[%d] (%s): price_usd must be positive", i, res.Path)
		}
	}

	return nil
}

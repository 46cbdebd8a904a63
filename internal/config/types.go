package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can express values either as Go-style
// strings ("30s", "5m") or bare numbers interpreted as seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration node kind %d", value.Kind)
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err == nil {
		d.Duration = parsed
		return nil
	}
	secs, convErr := time.ParseDuration(raw + "s")
	if convErr == nil {
		d.Duration = secs
		return nil
	}
	return fmt.Errorf("invalid duration value %q: %w", raw, err)
}

// Config is the full server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Solana         SolanaConfig         `yaml:"solana"`
	Cache          CacheConfig          `yaml:"cache"`
	Webhooks       WebhooksConfig       `yaml:"webhooks"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Resources      []ResourceConfig     `yaml:"resources"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address      string   `yaml:"address"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`

	// AdminAPIKey guards the webhook admin endpoints; empty disables them.
	AdminAPIKey string `yaml:"admin_api_key"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Environment string `yaml:"environment"`
}

// SolanaConfig describes the payment network and the wallet payments land in.
type SolanaConfig struct {
	// Network is the x402 network name ("solana-devnet",
	// "solana-mainnet-beta").
	Network string `yaml:"network"`

	RPCURL     string `yaml:"rpc_url"`
	Commitment string `yaml:"commitment"`

	// RecipientWallet is the merchant wallet address; payments must land
	// in its USDC associated token account.
	RecipientWallet string `yaml:"recipient_wallet"`

	// MaxPaymentAge is the freshness window for submitted transactions.
	MaxPaymentAge Duration `yaml:"max_payment_age"`

	// ChallengeTimeout is how long generated challenges stay payable.
	ChallengeTimeout Duration `yaml:"challenge_timeout"`
}

// CacheConfig selects the verification cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
}

// WebhooksConfig controls the delivery queue and retry behavior.
type WebhooksConfig struct {
	// URL is where payment events are POSTed; empty disables webhooks.
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`

	// Backend is "memory", "redis", or "postgres".
	Backend     string `yaml:"backend"`
	RedisURL    string `yaml:"redis_url"`
	PostgresURL string `yaml:"postgres_url"`

	PollInterval Duration    `yaml:"poll_interval"`
	Retry        RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors webhooks.RetryPolicy.
type RetryConfig struct {
	// Strategy is "exponential" or "linear".
	Strategy     string   `yaml:"strategy"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	MaxAttempts  int      `yaml:"max_attempts"`
}

// RateLimitConfig caps request rates before they reach verification.
type RateLimitConfig struct {
	Enabled      bool     `yaml:"enabled"`
	GlobalLimit  int      `yaml:"global_limit"`
	GlobalWindow Duration `yaml:"global_window"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig controls the outbound-call breakers.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ResourceConfig is one priced route.
type ResourceConfig struct {
	Path        string  `yaml:"path"`
	PriceUSD    float64 `yaml:"price_usd"`
	Description string  `yaml:"description"`
	MimeType    string  `yaml:"mime_type"`
}

// Package config loads server configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/latchpay/server/pkg/x402"
)

// Load reads configuration from a YAML file, applies environment overrides,
// and validates the result. path may be empty to run on defaults and
// environment alone.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "production",
		},
		Solana: SolanaConfig{
			Network:          x402.NetworkDevnet,
			RPCURL:           "https://api.devnet.solana.com",
			Commitment:       "confirmed",
			MaxPaymentAge:    Duration{Duration: x402.DefaultMaxPaymentAge},
			ChallengeTimeout: Duration{Duration: x402.DefaultTimeout},
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		Webhooks: WebhooksConfig{
			Backend:      "memory",
			PollInterval: Duration{Duration: 5 * time.Second},
			Retry: RetryConfig{
				Strategy:     "exponential",
				InitialDelay: Duration{Duration: 1 * time.Second},
				MaxDelay:     Duration{Duration: 5 * time.Minute},
				MaxAttempts:  3,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			GlobalLimit:  1000,
			GlobalWindow: Duration{Duration: time.Minute},
			PerIPLimit:   120,
			PerIPWindow:  Duration{Duration: time.Minute},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
		},
	}
}

func (c *Config) parseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variables on top of the parsed file.
// Namespaced variables use the LATCH_ prefix; the bare names (SOLANA_RPC_URL,
// REDIS_URL, POSTGRES_URL) are kept for drop-in deployment compatibility.
func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.Server.Address, "LATCH_SERVER_ADDRESS")
	setIfEnv(&c.Server.AdminAPIKey, "LATCH_ADMIN_API_KEY")

	setIfEnv(&c.Logging.Level, "LATCH_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "LATCH_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "LATCH_ENVIRONMENT")

	setIfEnv(&c.Solana.Network, "NETWORK")
	setIfEnv(&c.Solana.Network, "LATCH_NETWORK")
	setIfEnv(&c.Solana.RPCURL, "SOLANA_RPC_URL")
	setIfEnv(&c.Solana.RPCURL, "LATCH_SOLANA_RPC_URL")
	setIfEnv(&c.Solana.Commitment, "LATCH_SOLANA_COMMITMENT")
	setIfEnv(&c.Solana.RecipientWallet, "RECIPIENT_WALLET")
	setIfEnv(&c.Solana.RecipientWallet, "LATCH_RECIPIENT_WALLET")
	setDurationIfEnv(&c.Solana.MaxPaymentAge, "LATCH_MAX_PAYMENT_AGE")
	setDurationIfEnv(&c.Solana.ChallengeTimeout, "LATCH_CHALLENGE_TIMEOUT")

	setIfEnv(&c.Cache.Backend, "LATCH_CACHE_BACKEND")
	setIfEnv(&c.Cache.RedisURL, "REDIS_URL")
	setIfEnv(&c.Cache.RedisURL, "LATCH_CACHE_REDIS_URL")

	setIfEnv(&c.Webhooks.URL, "LATCH_WEBHOOK_URL")
	setIfEnv(&c.Webhooks.Secret, "LATCH_WEBHOOK_SECRET")
	setIfEnv(&c.Webhooks.Backend, "LATCH_WEBHOOK_BACKEND")
	setIfEnv(&c.Webhooks.RedisURL, "REDIS_URL")
	setIfEnv(&c.Webhooks.RedisURL, "LATCH_WEBHOOK_REDIS_URL")
	setIfEnv(&c.Webhooks.PostgresURL, "POSTGRES_URL")
	setIfEnv(&c.Webhooks.PostgresURL, "LATCH_WEBHOOK_POSTGRES_URL")
	setDurationIfEnv(&c.Webhooks.PollInterval, "LATCH_WEBHOOK_POLL_INTERVAL")
	setIntIfEnv(&c.Webhooks.Retry.MaxAttempts, "LATCH_WEBHOOK_MAX_ATTEMPTS")

	setBoolIfEnv(&c.RateLimit.Enabled, "LATCH_RATE_LIMIT_ENABLED")
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "LATCH_CIRCUIT_BREAKER_ENABLED")
}

func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*target = parsed
		}
	}
}

func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/latchpay/server/internal/cache"
	"github.com/latchpay/server/internal/circuitbreaker"
	"github.com/latchpay/server/internal/config"
	"github.com/latchpay/server/internal/httpserver"
	"github.com/latchpay/server/internal/logger"
	"github.com/latchpay/server/internal/metrics"
	"github.com/latchpay/server/internal/paywall"
	"github.com/latchpay/server/internal/webhooks"
	solanax402 "github.com/latchpay/server/pkg/x402/solana"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "latchpay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "latchpay",
		Environment: cfg.Logging.Environment,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := metrics.New(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init verification cache: %w", err)
	}
	defer store.Close()

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init webhook queue: %w", err)
	}
	defer queue.Close()

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.Enabled = cfg.CircuitBreaker.Enabled
	breakers := circuitbreaker.NewManager(breakerCfg, log)

	ledger := solanax402.NewRPCLedgerClient(cfg.Solana.RPCURL,
		solanax402.WithCommitment(commitmentLevel(cfg.Solana.Commitment)),
		solanax402.WithBreaker(breakers),
		solanax402.WithRPCMetrics(metricsCollector),
	)

	verifier, err := solanax402.NewVerifier(ledger, store, cfg.Solana.Network,
		solanax402.WithMaxPaymentAge(cfg.Solana.MaxPaymentAge.Duration),
		solanax402.WithVerifierMetrics(metricsCollector),
	)
	if err != nil {
		return fmt.Errorf("init verifier: %w", err)
	}

	generator, err := paywall.NewGenerator(cfg.Solana.RecipientWallet, cfg.Solana.Network,
		paywall.WithTimeout(int(cfg.Solana.ChallengeTimeout.Duration.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("init challenge generator: %w", err)
	}

	dispatcher := webhooks.NewDispatcher(queue,
		webhooks.Config{URL: cfg.Webhooks.URL, Secret: cfg.Webhooks.Secret},
		webhooks.WithRetryPolicy(retryPolicy(cfg.Webhooks.Retry)),
		webhooks.WithPollInterval(cfg.Webhooks.PollInterval.Duration),
		webhooks.WithLogger(log),
		webhooks.WithDispatcherMetrics(metricsCollector),
	)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	server := httpserver.New(cfg, httpserver.Deps{
		Generator: generator,
		Verifier:  verifier,
		Notifier:  dispatcher,
		Queue:     queue,
		Metrics:   metricsCollector,
		Registry:  registry,
		Logger:    log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", cfg.Server.Address).
			Str("network", cfg.Solana.Network).
			Int("resources", len(cfg.Resources)).
			Msg("server.starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("server.shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	log.Info().Msg("server.stopped")
	return nil
}

func buildCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisStore(ctx, cfg.Cache.RedisURL)
	default:
		return cache.NewMemoryStore(), nil
	}
}

func buildQueue(ctx context.Context, cfg *config.Config) (webhooks.Queue, error) {
	switch cfg.Webhooks.Backend {
	case "redis":
		return webhooks.NewRedisQueue(ctx, cfg.Webhooks.RedisURL)
	case "postgres":
		return webhooks.NewPostgresQueue(ctx, cfg.Webhooks.PostgresURL)
	default:
		return webhooks.NewMemoryQueue(), nil
	}
}

func commitmentLevel(name string) rpc.CommitmentType {
	switch name {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

func retryPolicy(cfg config.RetryConfig) webhooks.RetryPolicy {
	policy := webhooks.DefaultRetryPolicy()
	if cfg.Strategy == "linear" {
		policy.Strategy = webhooks.StrategyLinear
	}
	if cfg.InitialDelay.Duration > 0 {
		policy.InitialDelay = cfg.InitialDelay.Duration
	}
	if cfg.MaxDelay.Duration > 0 {
		policy.MaxDelay = cfg.MaxDelay.Duration
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	return policy
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"enhancer/internal/adapter/repo"
	"enhancer/internal/imagegen"
	"enhancer/internal/infra"
	"enhancer/internal/infra/credentials"
	"enhancer/internal/providers/kie"
	"enhancer/internal/storage"
)

// The worker re-attaches pollers to journal entries whose API process died
// mid-poll. It never submits new tasks.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	signer := storage.NewSigner(cfg.StorageBaseURL, cfg.StorageSigningSecret, cfg.SignedURLTTL)

	apiKey, err := credentials.ResolveKieAPIKey(ctx, cfg.KieAPIKey, credentials.NewStore(runner))
	if err != nil {
		logger.Warn().Err(err).Msg("worker: failed to load kie api key from store")
	}
	if apiKey == "" {
		logger.Fatal().Msg("worker: kie api key missing, nothing can be polled")
	}
	client := kie.NewClient(kie.Options{
		APIKey:         apiKey,
		BaseURL:        cfg.KieBaseURL,
		Model:          cfg.KieModel,
		RequestTimeout: cfg.KieHTTPTimeout,
		Logger:         &logger,
	})
	poller := kie.NewPoller(client, kie.PollerOptions{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		Logger:      &logger,
	})

	persister := imagegen.NewPersister(imagegen.PersisterDeps{
		Store:      store,
		Signer:     signer,
		History:    repo.NewHistoryRepository(runner),
		Jobs:       jobs,
		Quota:      imagegen.NewQuotaGuard(repo.NewQuotaRepository(runner), cfg.DefaultMonthlyLimit),
		HTTPClient: &http.Client{Timeout: cfg.KieHTTPTimeout},
		Logger:     &logger,
	})
	recoverer := imagegen.NewRecoverer(jobs, poller, persister, imagegen.RecovererOptions{
		Lease:       cfg.RecoveryLease,
		Concurrency: cfg.RecoveryConcurrency,
		Logger:      &logger,
	})

	logger.Info().
		Dur("interval", cfg.RecoveryInterval).
		Dur("lease", cfg.RecoveryLease).
		Int("concurrency", cfg.RecoveryConcurrency).
		Msg("worker: started")
	if err := recoverer.Run(ctx, cfg.RecoveryInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped")
	}
	logger.Info().Msg("worker: stopped")
}

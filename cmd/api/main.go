package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"enhancer/internal/adapter/repo"
	"enhancer/internal/http/handlers"
	httpapi "enhancer/internal/http/httpapi"
	"enhancer/internal/imagegen"
	"enhancer/internal/infra"
	"enhancer/internal/infra/credentials"
	"enhancer/internal/infra/geoip"
	"enhancer/internal/providers/kie"
	"enhancer/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	templates := repo.NewTemplateRepository(runner)
	quotaRepo := repo.NewQuotaRepository(runner)
	history := repo.NewHistoryRepository(runner)
	jobs := repo.NewJobRepository(runner)

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}
	signer := storage.NewSigner(cfg.StorageBaseURL, cfg.StorageSigningSecret, cfg.SignedURLTTL)

	apiKey, err := credentials.ResolveKieAPIKey(ctx, cfg.KieAPIKey, credentials.NewStore(runner))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load kie api key from store")
	}
	client := kie.NewClient(kie.Options{
		APIKey:         apiKey,
		BaseURL:        cfg.KieBaseURL,
		Model:          cfg.KieModel,
		RequestTimeout: cfg.KieHTTPTimeout,
		Logger:         &logger,
	})
	if !client.HasCredentials() {
		logger.Warn().Str("model", client.Model()).Msg("kie api key missing, only debug generations will succeed")
	}
	poller := kie.NewPoller(client, kie.PollerOptions{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		Logger:      &logger,
	})

	guard := imagegen.NewQuotaGuard(quotaRepo, cfg.DefaultMonthlyLimit)
	persister := imagegen.NewPersister(imagegen.PersisterDeps{
		Store:      store,
		Signer:     signer,
		History:    history,
		Jobs:       jobs,
		Quota:      guard,
		HTTPClient: &http.Client{Timeout: cfg.KieHTTPTimeout},
		Logger:     &logger,
	})
	orchestrator := imagegen.NewOrchestrator(imagegen.Deps{
		Assembler: imagegen.NewAssembler(templates),
		Selector: imagegen.NewSelector(imagegen.ReferenceAssets{
			Female:      cfg.ReferenceFemaleURL,
			FemaleHijab: cfg.ReferenceHijabURL,
			Male:        cfg.ReferenceMaleURL,
		}),
		Quota:     guard,
		Submitter: client,
		Poller:    poller,
		Persister: persister,
		Jobs:      jobs,
		Signer:    signer,
		Logger:    &logger,
		JobLease:  cfg.RecoveryLease,
	})

	app := &handlers.App{
		Generator: orchestrator,
		Quota:     guard,
		Templates: templates,
		History:   history,
		Jobs:      jobs,
		Store:     store,
		Signer:    signer,
		Logger:    &logger,
		Ready:     dbpool.Ping,
	}
	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer countries.Close()

	router := httpapi.NewRouter(app, cfg, logger, countries.Lookup())
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// In-flight generations keep polling under context.WithoutCancel; give
	// them the full poll budget before the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), poller.Budget()+cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-forecast/internal/advisory"
	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/config"
	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/optcache"
	"github.com/miradorstack/mirador-forecast/internal/optimizer"
	"github.com/miradorstack/mirador-forecast/internal/queue"
	"github.com/miradorstack/mirador-forecast/internal/repo"
	"github.com/miradorstack/mirador-forecast/internal/services"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	provider     cache.Provider
	store        repo.ObservationStore
	registry     *forecast.Registry
	configs      []forecast.ModelConfig
	cache        *optcache.Cache
	queue        *queue.Queue
	orchestrator *engine.Orchestrator
	generator    *engine.Generator
	service      *services.ForecastService
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	provider, err := buildProvider(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	registry := forecast.NewRegistry()
	configs, err := forecast.LoadModelConfigs(cfg.Forecast.ModelsPath, registry, logger)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("load model pack: %w", err)
	}
	configsFn := func() []forecast.ModelConfig { return configs }

	store := buildStore(cfg.Store, provider, logger)
	optCache := optcache.New(optcache.Options{
		Policy:         buildPolicy(cfg.Optimization.SelectionPolicy),
		SeasonalPeriod: cfg.Forecast.SeasonalPeriod,
		Logger:         logger,
	})
	q := queue.New()
	grid := optimizer.NewGridSearch(registry,
		optimizer.WithMaxFolds(cfg.Optimization.MaxFolds),
		optimizer.WithLogger(logger),
	)

	orchestrator := engine.NewOrchestrator(logger, store, registry, configsFn, optCache, q, grid, buildAdvisor(cfg.Advisory, logger), engine.OrchestratorConfig{
		SeasonalPeriod:     cfg.Forecast.SeasonalPeriod,
		MaxConcurrency:     cfg.Optimization.MaxConcurrency,
		JobTimeout:         cfg.Optimization.JobTimeout,
		AdvisoryEnabled:    cfg.Advisory.Enabled,
		AdvisoryCredential: cfg.Advisory.APIKey,
		BusinessContext:    cfg.Advisory.BusinessContext,
	})
	generator := engine.NewGenerator(logger, registry, optCache, cfg.Forecast.SeasonalPeriod)
	service := services.NewForecastService(logger, store, registry, configsFn, generator, optCache, q, orchestrator, cfg.Forecast.Horizon)

	return &app{
		cfg:          cfg,
		logger:       logger,
		provider:     provider,
		store:        store,
		registry:     registry,
		configs:      configs,
		cache:        optCache,
		queue:        q,
		orchestrator: orchestrator,
		generator:    generator,
		service:      service,
	}, nil
}

// restore loads the persisted cache snapshot, if any.
func (a *app) restore(ctx context.Context) {
	ok, err := a.cache.Restore(ctx, a.provider)
	switch {
	case err != nil:
		a.logger.Warn("cache snapshot restore failed", slog.Any("error", err))
	case ok:
		a.logger.Info("cache snapshot restored", slog.Int("skus", len(a.cache.SKUs())))
	}
}

// persist writes the cache snapshot to the configured backend.
func (a *app) persist(ctx context.Context) {
	if err := a.cache.Persist(ctx, a.provider); err != nil {
		a.logger.Warn("cache snapshot persist failed", slog.Any("error", err))
	}
}

func (a *app) close() {
	if err := a.provider.Close(); err != nil {
		a.logger.Warn("cache provider close", slog.Any("error", err))
	}
}

func buildProvider(cfg config.CacheConfig, logger *slog.Logger) (cache.Provider, error) {
	switch cfg.Backend {
	case "valkey":
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLS:          cfg.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, snapshots disabled", slog.Any("error", err))
			return cache.NoopProvider{}, nil
		}
		return provider, nil
	case "badger":
		provider, err := cache.OpenBadgerProvider(cache.BadgerConfig{Path: cfg.BadgerPath, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		return provider, nil
	case "memory":
		return cache.NewMemoryProvider(), nil
	default:
		return cache.NoopProvider{}, nil
	}
}

func buildStore(cfg config.StoreConfig, provider cache.Provider, logger *slog.Logger) repo.ObservationStore {
	if cfg.Kind == "http" {
		return repo.NewObservationClient(cfg.BaseURL, cfg.ObservationsPath, cfg.Dataset, cfg.Timeout, provider, cfg.CacheTTL, logger)
	}
	return repo.NewFileStore(cfg.Path, cfg.Sheet, logger)
}

func buildPolicy(name string) optcache.SelectionPolicy {
	if name == "expected-accuracy" {
		return optcache.ExpectedAccuracyPolicy{Fallback: optcache.DefaultPolicy()}
	}
	return optcache.DefaultPolicy()
}

// buildAdvisor returns nil when advisory optimisation is off or the key is
// unusable; the orchestrator then schedules grid jobs only.
func buildAdvisor(cfg config.AdvisoryConfig, logger *slog.Logger) advisory.Advisor {
	if !cfg.Enabled {
		return nil
	}
	client, err := advisory.NewOpenAIAdvisor(advisory.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("advisory optimiser disabled", slog.Any("error", err))
		return nil
	}
	return advisory.NewGuarded(client, advisory.GuardConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		FailureThreshold:  cfg.FailureThreshold,
		OpenTimeout:       cfg.OpenTimeout,
	})
}

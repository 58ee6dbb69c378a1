package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/fingerprint"
	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/optcache"
	"github.com/miradorstack/mirador-forecast/internal/queue"
	"github.com/miradorstack/mirador-forecast/internal/repo"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

// Triggerer wakes the optimisation loop after new work is queued.
type Triggerer interface {
	Trigger()
}

// ForecastService is the engine's exposed contract: forecast generation,
// cache inspection and re-optimisation requests.
type ForecastService struct {
	logger    *slog.Logger
	store     repo.ObservationStore
	registry  *forecast.Registry
	configs   func() []forecast.ModelConfig
	generator *engine.Generator
	cache     *optcache.Cache
	queue     *queue.Queue
	trigger   Triggerer
	horizon   int
	latencies *utils.LatencyTracker
}

// NewForecastService constructs the service facade. trigger may be nil when
// no optimisation loop is running.
func NewForecastService(
	logger *slog.Logger,
	store repo.ObservationStore,
	registry *forecast.Registry,
	configs func() []forecast.ModelConfig,
	generator *engine.Generator,
	cache *optcache.Cache,
	q *queue.Queue,
	trigger Triggerer,
	defaultHorizon int,
) *ForecastService {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = forecast.NewRegistry()
	}
	if configs == nil {
		defaults := forecast.DefaultModelConfigs(registry)
		configs = func() []forecast.ModelConfig { return defaults }
	}
	if defaultHorizon <= 0 {
		defaultHorizon = 6
	}
	return &ForecastService{
		logger:    logger,
		store:     store,
		registry:  registry,
		configs:   configs,
		generator: generator,
		cache:     cache,
		queue:     q,
		trigger:   trigger,
		horizon:   defaultHorizon,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Generate forecasts the next horizon periods of sku with every enabled
// model. A non-positive horizon uses the configured default.
func (s *ForecastService) Generate(ctx context.Context, sku string, horizon int) ([]models.ForecastResult, error) {
	const op = "ForecastService.Generate"
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, utils.NewKindError(utils.KindInvalid, op, "sku is required", nil)
	}
	if s.generator == nil {
		return nil, utils.NewKindError(utils.KindUnavailable, op, "generator not configured", nil)
	}
	if horizon <= 0 {
		horizon = s.horizon
	}

	observations, err := s.observations(ctx, op)
	if err != nil {
		return nil, err
	}
	if len(models.SeriesFor(observations, sku)) == 0 {
		return nil, utils.NewKindError(utils.KindNotFound, op, "unknown sku "+sku, nil)
	}

	start := time.Now()
	results, err := s.generator.Generate(sku, observations, s.configs(), horizon)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveForecast(duration, metrics.OutcomeError)
		s.logger.Error("forecast generation failed", slog.String("sku", sku), slog.Any("error", err))
		var insufficient *models.InsufficientDataError
		if errors.As(err, &insufficient) {
			return nil, utils.NewKindError(utils.KindInvalid, op, "not enough history", err)
		}
		return nil, utils.NewAppError(op, "generation failed", err)
	}
	metrics.ObserveForecast(duration, metrics.OutcomeSuccess)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("forecast latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return results, nil
}

// Snapshot returns a copy of the cache entry for (sku, modelID).
func (s *ForecastService) Snapshot(sku, modelID string) (models.CacheEntry, error) {
	const op = "ForecastService.Snapshot"
	if sku == "" || modelID == "" {
		return models.CacheEntry{}, utils.NewKindError(utils.KindInvalid, op, "sku and model are required", nil)
	}
	if _, err := s.registry.Describe(modelID); err != nil {
		return models.CacheEntry{}, utils.NewKindError(utils.KindInvalid, op, "unknown model", err)
	}
	entry, ok := s.cache.Snapshot(sku, modelID)
	if !ok {
		return models.CacheEntry{}, utils.NewKindError(utils.KindNotFound, op, "no proposals for "+sku+"/"+modelID, nil)
	}
	return entry, nil
}

// CacheVersion returns the cache's monotonically increasing write counter.
func (s *ForecastService) CacheVersion() uint64 {
	return s.cache.Version()
}

// Subscribe forwards the cache's version notifications.
func (s *ForecastService) Subscribe() (<-chan uint64, func()) {
	return s.cache.Subscribe()
}

// Select makes method the active proposal for (sku, modelID) and pins it
// against later automated writes.
func (s *ForecastService) Select(sku, modelID string, method models.Method) error {
	const op = "ForecastService.Select"
	if !method.Valid() {
		return utils.NewKindError(utils.KindInvalid, op, "unknown method "+string(method), nil)
	}
	if !s.cache.Select(sku, modelID, method) {
		return utils.NewKindError(utils.KindNotFound, op, "no "+string(method)+" proposal for "+sku+"/"+modelID, nil)
	}
	return nil
}

// SetManual stores user-supplied parameters for (sku, modelID) against the
// SKU's current data and selects them.
func (s *ForecastService) SetManual(ctx context.Context, sku, modelID string, params models.Parameters) error {
	const op = "ForecastService.SetManual"
	if sku == "" {
		return utils.NewKindError(utils.KindInvalid, op, "sku is required", nil)
	}
	desc, err := s.registry.Describe(modelID)
	if err != nil {
		return utils.NewKindError(utils.KindInvalid, op, "unknown model", err)
	}
	observations, err := s.observations(ctx, op)
	if err != nil {
		return err
	}
	series := models.Values(models.SeriesFor(observations, sku))
	if len(series) == 0 {
		return utils.NewKindError(utils.KindNotFound, op, "unknown sku "+sku, nil)
	}
	s.cache.SetProposal(sku, modelID, models.MethodManual, desc.Normalize(params), fingerprint.SKUDataHash(series), models.ProposalMeta{
		Reasoning: "Set manually",
	})
	s.logger.Info("manual parameters stored", slog.String("sku", sku), slog.String("model", modelID))
	return nil
}

// Enqueue requests re-optimisation of skus. An empty list queues every SKU
// in the current dataset. It returns the number of distinct SKUs queued.
func (s *ForecastService) Enqueue(ctx context.Context, skus []string, reason string) (int, error) {
	const op = "ForecastService.Enqueue"
	if reason == "" {
		reason = "manual"
	}
	targets := make([]string, 0, len(skus))
	seen := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		sku = strings.TrimSpace(sku)
		if _, dup := seen[sku]; sku == "" || dup {
			continue
		}
		seen[sku] = struct{}{}
		targets = append(targets, sku)
	}
	if len(skus) > 0 && len(targets) == 0 {
		return 0, utils.NewKindError(utils.KindInvalid, op, "sku list contains only blanks", nil)
	}
	if len(targets) == 0 {
		observations, err := s.observations(ctx, op)
		if err != nil {
			return 0, err
		}
		for sku := range models.GroupBySKU(observations) {
			targets = append(targets, sku)
		}
		sort.Strings(targets)
	}

	s.queue.EnqueueAll(targets, reason)
	metrics.SetQueueDepth(s.queue.Size())
	s.logger.Info("skus queued for optimisation", slog.Int("count", len(targets)), slog.String("reason", reason))
	if s.trigger != nil {
		s.trigger.Trigger()
	}
	return len(targets), nil
}

// QueueSize returns the number of distinct SKUs awaiting optimisation.
func (s *ForecastService) QueueSize() int {
	return s.queue.Size()
}

// QueueItems lists the queued SKUs in enqueue order.
func (s *ForecastService) QueueItems() []models.QueueItem {
	return s.queue.Peek()
}

// LatencyP95 returns the current p95 generation latency.
func (s *ForecastService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func (s *ForecastService) observations(ctx context.Context, op string) ([]models.Observation, error) {
	if s.store == nil {
		return nil, utils.NewKindError(utils.KindUnavailable, op, "observation store not configured", nil)
	}
	observations, err := s.store.GetObservations(ctx)
	if err != nil {
		s.logger.Error("load observations failed", slog.Any("error", err))
		return nil, utils.NewKindError(utils.KindUnavailable, op, "load observations", err)
	}
	return observations, nil
}

package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-forecast/internal/fingerprint"
	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/optcache"
)

const (
	minForecastObservations = 3
	defaultModelParallelism = 4
)

// Generator produces per-model forecasts for a SKU using the best known
// parameters.
type Generator struct {
	logger         *slog.Logger
	registry       *forecast.Registry
	cache          *optcache.Cache
	seasonalPeriod int
	parallelism    int
}

// NewGenerator constructs a Generator. cache may be nil, in which case the
// configured parameters are always used.
func NewGenerator(logger *slog.Logger, registry *forecast.Registry, cache *optcache.Cache, seasonalPeriod int) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = forecast.NewRegistry()
	}
	return &Generator{
		logger:         logger,
		registry:       registry,
		cache:          cache,
		seasonalPeriod: seasonalPeriod,
		parallelism:    defaultModelParallelism,
	}
}

// Generate forecasts horizon steps for sku with every enabled model. A model
// that cannot train or predict yields a result with Error set instead of
// failing its siblings; only an unknown model id or a series shorter than
// three observations fails the call.
func (g *Generator) Generate(sku string, observations []models.Observation, configs []forecast.ModelConfig, horizon int) ([]models.ForecastResult, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	series := models.Values(models.SeriesFor(observations, sku))
	if len(series) < minForecastObservations {
		return nil, &models.InsufficientDataError{Required: minForecastObservations, Actual: len(series)}
	}

	type task struct {
		desc   forecast.ModelDescriptor
		params models.Parameters
		method models.Method
	}
	hash := fingerprint.SKUDataHash(series)
	var tasks []task
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		desc, err := g.registry.Describe(cfg.ID)
		if err != nil {
			return nil, err
		}
		params, method := g.resolve(sku, desc, cfg, hash)
		tasks = append(tasks, task{desc: desc, params: params, method: method})
	}

	results := make([]models.ForecastResult, len(tasks))
	var eg errgroup.Group
	eg.SetLimit(g.parallelism)
	for i, t := range tasks {
		i, t := i, t
		eg.Go(func() error {
			results[i] = g.run(sku, t.desc, t.params, t.method, series, horizon)
			return nil
		})
	}
	_ = eg.Wait()
	return results, nil
}

// resolve picks the selected cached proposal when it matches the current
// data, otherwise the configured manual or default parameters.
func (g *Generator) resolve(sku string, desc forecast.ModelDescriptor, cfg forecast.ModelConfig, hash string) (models.Parameters, models.Method) {
	if g.cache != nil && g.cache.IsValid(sku, desc.ID, hash) {
		if entry, ok := g.cache.Snapshot(sku, desc.ID); ok {
			if selected := entry.SelectedProposal(); selected != nil {
				return desc.Normalize(selected.Parameters), entry.Selected
			}
		}
	}
	return desc.Normalize(cfg.Parameters), ""
}

func (g *Generator) run(sku string, desc forecast.ModelDescriptor, params models.Parameters, method models.Method, series []float64, horizon int) models.ForecastResult {
	result := models.ForecastResult{
		SKU:         sku,
		ModelID:     desc.ID,
		DisplayName: desc.DisplayName,
		Parameters:  params,
		Method:      method,
		Predictions: []float64{},
	}
	fail := func(err error) models.ForecastResult {
		g.logger.Debug("model forecast failed",
			slog.String("sku", sku),
			slog.String("model", desc.ID),
			slog.Any("error", err),
		)
		result.Accuracy = 0
		result.Predictions = []float64{}
		result.Error = err.Error()
		return result
	}

	full, err := g.registry.Instantiate(desc.ID, params, g.seasonalPeriod)
	if err != nil {
		return fail(err)
	}
	if err := full.Train(series); err != nil {
		return fail(err)
	}
	predictions, err := full.Predict(horizon)
	if err != nil {
		return fail(err)
	}

	score, err := g.score(desc, params, full, series, horizon)
	if err != nil {
		return fail(err)
	}

	result.Predictions = predictions
	result.Accuracy = score.Accuracy
	result.MAPE = score.MAPE
	result.RMSE = score.RMSE
	result.MAE = score.MAE
	return result
}

// score validates on the last min(horizon, n/4) values with a model trained
// on the rest. When that prefix is too short for the model, the full-series
// instance is scored against the same tail instead.
func (g *Generator) score(desc forecast.ModelDescriptor, params models.Parameters, full forecast.Model, series []float64, horizon int) (forecast.ValidationResult, error) {
	n := len(series)
	tail := n / 4
	if horizon < tail {
		tail = horizon
	}
	if tail < 1 {
		tail = 1
	}
	holdout := series[n-tail:]

	scorer, err := g.registry.Instantiate(desc.ID, params, g.seasonalPeriod)
	if err != nil {
		return forecast.ValidationResult{}, err
	}
	err = scorer.Train(series[:n-tail])
	var insufficient *models.InsufficientDataError
	switch {
	case err == nil:
		return scorer.Validate(holdout)
	case errors.As(err, &insufficient):
		return full.Validate(holdout)
	default:
		return forecast.ValidationResult{}, err
	}
}

// Package optimizer searches a model's parameter grid with walk-forward validation.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

const (
	defaultMaxFolds = 3
	minConfidence   = 60
	maxConfidence   = 95
)

// Result is the best candidate found by a search.
type Result struct {
	Parameters       models.Parameters
	MAPE             float64
	Accuracy         float64
	Confidence       float64
	ExpectedAccuracy float64
	Reasoning        string
	Evaluated        int
	Folds            int
}

// Meta converts r into cache proposal metadata.
func (r Result) Meta() models.ProposalMeta {
	confidence, expected := r.Confidence, r.ExpectedAccuracy
	return models.ProposalMeta{
		Confidence:       &confidence,
		Reasoning:        r.Reasoning,
		ExpectedAccuracy: &expected,
	}
}

// Option configures a GridSearch.
type Option func(*GridSearch)

// WithMaxFolds caps the number of walk-forward folds.
func WithMaxFolds(n int) Option {
	return func(g *GridSearch) {
		if n > 0 {
			g.maxFolds = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *GridSearch) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// GridSearch evaluates every candidate of a descriptor's grid and keeps the
// one with the lowest mean MAPE across folds. Ties keep the earlier candidate,
// so results are deterministic for a given series.
type GridSearch struct {
	registry *forecast.Registry
	maxFolds int
	logger   *slog.Logger
}

// NewGridSearch builds a searcher over models from registry.
func NewGridSearch(registry *forecast.Registry, opts ...Option) *GridSearch {
	g := &GridSearch{registry: registry, maxFolds: defaultMaxFolds, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type fold struct {
	train []float64
	test  []float64
}

// Optimize searches modelID's grid over series. It returns
// *models.InsufficientDataError when no fold leaves enough training history.
func (g *GridSearch) Optimize(ctx context.Context, modelID string, series []float64, seasonalPeriod int) (Result, error) {
	desc, err := g.registry.Describe(modelID)
	if err != nil {
		return Result{}, err
	}

	folds, err := g.folds(desc, series, seasonalPeriod)
	if err != nil {
		return Result{}, err
	}

	candidates := desc.Candidates()
	var (
		best      models.Parameters
		bestMAPE  = math.Inf(1)
		evaluated int
		lastErr   error
	)
	for _, params := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		score, err := g.evaluate(modelID, params, folds, seasonalPeriod)
		if err != nil {
			lastErr = err
			continue
		}
		evaluated++
		if score < bestMAPE {
			best, bestMAPE = params, score
		}
	}
	if best == nil {
		if lastErr == nil {
			lastErr = errors.New("no candidates")
		}
		return Result{}, fmt.Errorf("grid search %s: %w", modelID, lastErr)
	}

	accuracy := forecast.Accuracy(bestMAPE)
	result := Result{
		Parameters:       best,
		MAPE:             bestMAPE,
		Accuracy:         accuracy,
		Confidence:       math.Max(minConfidence, math.Min(maxConfidence, accuracy)),
		ExpectedAccuracy: accuracy,
		Evaluated:        evaluated,
		Folds:            len(folds),
		Reasoning: fmt.Sprintf("walk-forward grid search over %d candidates and %d folds; best mean MAPE %.2f%%",
			evaluated, len(folds), bestMAPE),
	}
	g.logger.Debug("grid search complete",
		slog.String("model", modelID),
		slog.Int("candidates", evaluated),
		slog.Float64("mape", bestMAPE),
	)
	return result, nil
}

// folds builds up to maxFolds consecutive test windows at the end of the
// series, oldest first. The window is a fifth of the series, capped at one
// season for seasonal models, and shrinks so a single fold fits whenever the
// descriptor is Tunable for the series.
func (g *GridSearch) folds(desc forecast.ModelDescriptor, series []float64, seasonalPeriod int) ([]fold, error) {
	n := len(series)
	minTrain := desc.MinHistory(seasonalPeriod)
	if !desc.Tunable(n, seasonalPeriod) {
		return nil, &models.InsufficientDataError{ModelID: desc.ID, Required: minTrain + 1, Actual: n}
	}

	window := n / 5
	if window < 1 {
		window = 1
	}
	if desc.Seasonal && seasonalPeriod > 0 && window > seasonalPeriod {
		window = seasonalPeriod
	}
	if n-window < minTrain {
		window = n - minTrain
	}

	var out []fold
	for k := g.maxFolds; k >= 1; k-- {
		end := n - k*window
		if end < minTrain {
			continue
		}
		out = append(out, fold{train: series[:end], test: series[end : end+window]})
	}
	return out, nil
}

func (g *GridSearch) evaluate(modelID string, params models.Parameters, folds []fold, seasonalPeriod int) (float64, error) {
	total := 0.0
	for _, f := range folds {
		m, err := g.registry.Instantiate(modelID, params, seasonalPeriod)
		if err != nil {
			return 0, err
		}
		if err := m.Train(f.train); err != nil {
			return 0, err
		}
		v, err := m.Validate(f.test)
		if err != nil {
			return 0, err
		}
		total += v.MAPE
	}
	return total / float64(len(folds)), nil
}

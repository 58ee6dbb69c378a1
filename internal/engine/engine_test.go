package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/advisory"
	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/optcache"
	"github.com/miradorstack/mirador-forecast/internal/queue"
)

const testCredential = "sk-test-0123456789abcdefghij"

type staticStore struct {
	mu  sync.Mutex
	obs []models.Observation
	err error
}

func (s *staticStore) GetObservations(context.Context) ([]models.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.Observation(nil), s.obs...), nil
}

type advisorFunc func(ctx context.Context, req advisory.Request) (advisory.Recommendation, error)

func (f advisorFunc) Recommend(ctx context.Context, req advisory.Request) (advisory.Recommendation, error) {
	return f(ctx, req)
}

func monthly(sku string, values ...float64) []models.Observation {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Observation, len(values))
	for i, v := range values {
		out[i] = models.Observation{SKU: sku, Date: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

func trendValues(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*float64(i)
	}
	return out
}

func configsFor(ids ...string) func() []forecast.ModelConfig {
	r := forecast.NewRegistry()
	var configs []forecast.ModelConfig
	for _, id := range ids {
		desc, _ := r.Describe(id)
		configs = append(configs, forecast.ModelConfig{ID: id, Enabled: true, Parameters: desc.Defaults()})
	}
	return func() []forecast.ModelConfig { return configs }
}

func findResult(t *testing.T, results []models.ForecastResult, id string) models.ForecastResult {
	t.Helper()
	for _, r := range results {
		if r.ModelID == id {
			return r
		}
	}
	t.Fatalf("no result for %s", id)
	return models.ForecastResult{}
}

func TestGenerateEndToEndScenario(t *testing.T) {
	g := NewGenerator(nil, forecast.NewRegistry(), nil, 12)
	obs := monthly("A", trendValues(24)...)

	results, err := g.Generate("A", obs, configsFor(forecast.ModelLinearTrend, forecast.ModelSeasonalNaive)(), 1)
	require.NoError(t, err)
	require.Len(t, results, 2)

	linear := findResult(t, results, forecast.ModelLinearTrend)
	require.Empty(t, linear.Error)
	assert.InDelta(t, 340, linear.Predictions[0], 1e-6)
	assert.InDelta(t, 100, linear.Accuracy, 1e-6)

	naive := findResult(t, results, forecast.ModelSeasonalNaive)
	require.Empty(t, naive.Error)
	assert.InDelta(t, 220, naive.Predictions[0], 1e-9)
}

func TestGenerateDegradesPerModel(t *testing.T) {
	g := NewGenerator(nil, forecast.NewRegistry(), nil, 12)
	obs := monthly("A", trendValues(10)...)

	results, err := g.Generate("A", obs, configsFor(forecast.ModelHoltWinters, forecast.ModelSES)(), 3)
	require.NoError(t, err)

	hw := findResult(t, results, forecast.ModelHoltWinters)
	assert.Contains(t, hw.Error, "need at least 24 observations")
	assert.Equal(t, 0.0, hw.Accuracy)
	assert.NotNil(t, hw.Predictions)
	assert.Empty(t, hw.Predictions)

	ses := findResult(t, results, forecast.ModelSES)
	assert.Empty(t, ses.Error)
	assert.Len(t, ses.Predictions, 3)
}

func TestGenerateHardFailures(t *testing.T) {
	g := NewGenerator(nil, forecast.NewRegistry(), nil, 12)

	_, err := g.Generate("A", monthly("A", 1, 2), configsFor(forecast.ModelSES)(), 1)
	var insufficient *models.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Contains(t, err.Error(), "need at least 3 observations")

	_, err = g.Generate("A", monthly("A", 1, 2, 3, 4), []forecast.ModelConfig{{ID: "prophet", Enabled: true}}, 1)
	var unknown *models.UnknownModelError
	assert.True(t, errors.As(err, &unknown))

	_, err = g.Generate("A", monthly("A", 1, 2, 3, 4), configsFor(forecast.ModelSES)(), 0)
	assert.Error(t, err)
}

func TestGenerateUsesValidCachedProposal(t *testing.T) {
	r := forecast.NewRegistry()
	cache := optcache.New(optcache.Options{SeasonalPeriod: 12})
	values := []float64{10, 12, 11, 13, 12, 14}
	obs := monthly("A", values...)
	desc, _ := r.Describe(forecast.ModelSES)
	cache.Reconcile(obs, []forecast.ModelDescriptor{desc})
	hash, ok := cache.DataHash("A")
	require.True(t, ok)

	cache.SetProposal("A", forecast.ModelSES, models.MethodGrid, models.Parameters{"alpha": 0.8}, hash, models.ProposalMeta{})
	g := NewGenerator(nil, r, cache, 12)
	results, err := g.Generate("A", obs, configsFor(forecast.ModelSES)(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.MethodGrid, results[0].Method)
	assert.Equal(t, 0.8, results[0].Parameters.Float("alpha", 0))

	// stale proposals fall back to the configured parameters
	changed := monthly("A", append(values, 30)...)
	results, err = g.Generate("A", changed, configsFor(forecast.ModelSES)(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.Method(""), results[0].Method)
	assert.Equal(t, 0.3, results[0].Parameters.Float("alpha", 0))
}

func newTestOrchestrator(store ObservationSource, advisor advisory.Advisor, enabled bool, ids ...string) (*Orchestrator, *optcache.Cache, *queue.Queue) {
	r := forecast.NewRegistry()
	cache := optcache.New(optcache.Options{SeasonalPeriod: 4})
	q := queue.New()
	o := NewOrchestrator(nil, store, r, configsFor(ids...), cache, q, nil, advisor, OrchestratorConfig{
		SeasonalPeriod:     4,
		MaxConcurrency:     2,
		JobTimeout:         5 * time.Second,
		AdvisoryEnabled:    enabled,
		AdvisoryCredential: testCredential,
	})
	return o, cache, q
}

func TestDrainWritesGridAndAdvisoryProposals(t *testing.T) {
	store := &staticStore{obs: append(monthly("A", trendValues(12)...), monthly("B", 5, 6, 5, 7, 6, 8, 7, 9)...)}
	advisor := advisorFunc(func(_ context.Context, req advisory.Request) (advisory.Recommendation, error) {
		return advisory.Recommendation{
			OptimizedParameters: models.Parameters{"alpha": 5.0, "beta": 0.2},
			Confidence:          70,
			Reasoning:           "stable",
			ExpectedAccuracy:    90,
		}, nil
	})
	o, cache, q := newTestOrchestrator(store, advisor, true, forecast.ModelSES, forecast.ModelHolt)
	q.EnqueueAll([]string{"A", "B"}, "initial")

	versions, cancel := o.Subscribe()
	defer cancel()

	report, err := o.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.SKUs)
	assert.Equal(t, 8, report.Jobs)
	assert.Equal(t, 8, report.Written)
	assert.Zero(t, q.Size())
	assert.Equal(t, uint64(8), cache.Version())

	select {
	case v := <-versions:
		assert.NotZero(t, v)
	default:
		t.Fatal("expected a version notification")
	}

	entry, ok := cache.Snapshot("A", forecast.ModelSES)
	require.True(t, ok)
	require.NotNil(t, entry.Grid)
	require.NotNil(t, entry.AI)
	assert.Equal(t, models.MethodAI, entry.Selected)
	// advisory output is clamped into the schema
	assert.Equal(t, 0.99, entry.AI.Parameters.Float("alpha", 0))
	assert.NotContains(t, entry.AI.Parameters, "beta")

	hash, _ := cache.DataHash("A")
	assert.True(t, cache.IsValid("A", forecast.ModelSES, hash))

	// nothing left to do: a second pass dispatches nothing
	q.Enqueue("A", "again")
	report, err = o.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Jobs)
	assert.Zero(t, q.Size())
}

func TestDrainDropsAdvisoryFailures(t *testing.T) {
	var calls atomic.Int32
	advisor := advisorFunc(func(context.Context, advisory.Request) (advisory.Recommendation, error) {
		calls.Add(1)
		return advisory.Recommendation{}, &models.RateLimitError{}
	})
	store := &staticStore{obs: monthly("A", trendValues(10)...)}
	o, cache, q := newTestOrchestrator(store, advisor, true, forecast.ModelSES)
	q.Enqueue("A", "initial")

	report, err := o.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Jobs)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, q.Size())

	entry, ok := cache.Snapshot("A", forecast.ModelSES)
	require.True(t, ok)
	assert.Nil(t, entry.AI)
	assert.Equal(t, models.MethodGrid, entry.Selected)
}

func TestDrainSkipsAdvisoryWithoutValidCredential(t *testing.T) {
	advisor := advisorFunc(func(context.Context, advisory.Request) (advisory.Recommendation, error) {
		t.Fatal("advisor must not be called")
		return advisory.Recommendation{}, nil
	})
	store := &staticStore{obs: monthly("A", trendValues(10)...)}
	o, _, q := newTestOrchestrator(store, advisor, true, forecast.ModelSES)
	o.cfg.AdvisoryCredential = "short"
	q.Enqueue("A", "initial")

	report, err := o.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Jobs)
}

func TestDrainKeepsSKUReenqueuedDuringProcessing(t *testing.T) {
	store := &staticStore{obs: monthly("A", trendValues(10)...)}
	var q *queue.Queue
	advisor := advisorFunc(func(context.Context, advisory.Request) (advisory.Recommendation, error) {
		q.Enqueue("A", "data-changed")
		return advisory.Recommendation{OptimizedParameters: models.Parameters{"alpha": 0.5}}, nil
	})
	o, _, queued := newTestOrchestrator(store, advisor, true, forecast.ModelSES)
	q = queued
	q.Enqueue("A", "initial")

	_, err := o.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, q.Size())
	assert.Equal(t, "data-changed", q.Peek()[0].Reason)
}

func TestDrainRemovesUnknownSKUs(t *testing.T) {
	store := &staticStore{obs: monthly("A", trendValues(10)...)}
	o, _, q := newTestOrchestrator(store, nil, false, forecast.ModelSES)
	q.Enqueue("ghost", "initial")

	report, err := o.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Jobs)
	assert.Equal(t, []string{"ghost"}, report.Completed)
	assert.Zero(t, q.Size())
}

func TestDrainSurfacesStoreErrors(t *testing.T) {
	store := &staticStore{err: errors.New("store offline")}
	o, _, q := newTestOrchestrator(store, nil, false, forecast.ModelSES)
	q.Enqueue("A", "initial")

	_, err := o.Drain(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "store offline"))
	assert.Equal(t, 1, q.Size())
}

func TestOptimisedParametersFlowIntoForecast(t *testing.T) {
	obs := monthly("A", trendValues(12)...)
	store := &staticStore{obs: obs}
	o, cache, q := newTestOrchestrator(store, nil, false, forecast.ModelHolt)
	q.Enqueue("A", "initial")
	_, err := o.Drain(context.Background())
	require.NoError(t, err)

	g := NewGenerator(nil, o.registry, cache, 4)
	results, err := g.Generate("A", obs, configsFor(forecast.ModelHolt)(), 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.MethodGrid, results[0].Method)
	assert.InDeltaSlice(t, []float64{220, 230}, results[0].Predictions, 1e-6)
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	store := &staticStore{obs: monthly("A", trendValues(10)...)}
	o, cache, q := newTestOrchestrator(store, nil, false, forecast.ModelSES)
	versions, unsubscribe := o.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, time.Hour) }()

	q.Enqueue("A", "initial")
	o.Trigger()

	select {
	case <-versions:
	case <-time.After(5 * time.Second):
		t.Fatal("run loop never wrote a proposal")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	_, ok := cache.Snapshot("A", forecast.ModelSES)
	assert.True(t, ok)
}

func TestDrainSettlesSeasonalModelsAtTwoSeasons(t *testing.T) {
	r := forecast.NewRegistry()
	ids := []string{forecast.ModelHoltWinters, forecast.ModelSeasonalMovingAverage, forecast.ModelSES}
	configs := configsFor(ids...)
	descriptors := forecast.EnabledDescriptors(r, configs())

	for _, tc := range []struct {
		name    string
		months  int
		jobs    int
		skipped bool
	}{
		{name: "two seasons", months: 24, jobs: 1, skipped: true},
		{name: "two seasons and a quarter", months: 28, jobs: 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			obs := monthly("A", trendValues(tc.months)...)
			cache := optcache.New(optcache.Options{SeasonalPeriod: 12})
			q := queue.New()
			o := NewOrchestrator(nil, &staticStore{obs: obs}, r, configs, cache, q, nil, nil, OrchestratorConfig{
				SeasonalPeriod: 12,
				MaxConcurrency: 2,
				JobTimeout:     5 * time.Second,
			})

			for round := 0; round < 2; round++ {
				q.Enqueue("A", "initial")
				report, err := o.Drain(context.Background())
				require.NoError(t, err)
				assert.Zero(t, report.Failed, "round %d", round)
				if round == 0 {
					assert.Equal(t, tc.jobs, report.Jobs)
					assert.Equal(t, tc.jobs, report.Written)
				} else {
					assert.Zero(t, report.Jobs, "round %d", round)
				}
				assert.Zero(t, q.Size())
			}
			assert.Empty(t, cache.NeedsOptimization(obs, descriptors))

			_, ok := cache.Snapshot("A", forecast.ModelHoltWinters)
			assert.Equal(t, !tc.skipped, ok)
		})
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/optcache"
	"github.com/miradorstack/mirador-forecast/internal/queue"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

type storeStub struct {
	obs []models.Observation
	err error
}

func (s *storeStub) GetObservations(context.Context) ([]models.Observation, error) {
	return s.obs, s.err
}

type triggerStub struct{ calls int }

func (t *triggerStub) Trigger() { t.calls++ }

func monthly(sku string, values ...float64) []models.Observation {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Observation, len(values))
	for i, v := range values {
		out[i] = models.Observation{SKU: sku, Date: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

func newTestService(store *storeStub, trigger Triggerer, ids ...string) (*ForecastService, *optcache.Cache, *queue.Queue) {
	r := forecast.NewRegistry()
	var configs []forecast.ModelConfig
	for _, id := range ids {
		desc, _ := r.Describe(id)
		configs = append(configs, forecast.ModelConfig{ID: id, Enabled: true, Parameters: desc.Defaults()})
	}
	cache := optcache.New(optcache.Options{SeasonalPeriod: 4})
	q := queue.New()
	gen := engine.NewGenerator(nil, r, cache, 4)
	svc := NewForecastService(nil, store, r, func() []forecast.ModelConfig { return configs }, gen, cache, q, trigger, 3)
	return svc, cache, q
}

func TestGenerateUsesDefaultHorizon(t *testing.T) {
	store := &storeStub{obs: monthly("A", 100, 110, 120, 130, 140, 150, 160, 170)}
	svc, _, _ := newTestService(store, nil, forecast.ModelLinearTrend)

	results, err := svc.Generate(context.Background(), "A", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Predictions, 3)
	assert.InDelta(t, 180, results[0].Predictions[0], 1e-6)
	assert.InDelta(t, 200, results[0].Predictions[2], 1e-6)
}

func TestGenerateErrorKinds(t *testing.T) {
	store := &storeStub{obs: monthly("A", 1, 2)}
	svc, _, _ := newTestService(store, nil, forecast.ModelSES)

	_, err := svc.Generate(context.Background(), " ", 1)
	assert.Equal(t, utils.KindInvalid, utils.KindOf(err))

	_, err = svc.Generate(context.Background(), "missing", 1)
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))

	_, err = svc.Generate(context.Background(), "A", 1)
	assert.Equal(t, utils.KindInvalid, utils.KindOf(err))
	var insufficient *models.InsufficientDataError
	assert.True(t, errors.As(err, &insufficient))

	store.err = errors.New("upstream down")
	_, err = svc.Generate(context.Background(), "A", 1)
	assert.Equal(t, utils.KindUnavailable, utils.KindOf(err))
}

func TestSnapshotSelectAndManual(t *testing.T) {
	store := &storeStub{obs: monthly("A", 10, 12, 11, 13, 12, 14)}
	svc, cache, _ := newTestService(store, nil, forecast.ModelSES)

	_, err := svc.Snapshot("A", forecast.ModelSES)
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))
	_, err = svc.Snapshot("A", "prophet")
	assert.Equal(t, utils.KindInvalid, utils.KindOf(err))

	before := svc.CacheVersion()
	require.NoError(t, svc.SetManual(context.Background(), "A", forecast.ModelSES, models.Parameters{"alpha": 0.7}))
	assert.Greater(t, svc.CacheVersion(), before)

	entry, err := svc.Snapshot("A", forecast.ModelSES)
	require.NoError(t, err)
	assert.Equal(t, models.MethodManual, entry.Selected)
	assert.Equal(t, 0.7, entry.Manual.Parameters.Float("alpha", 0))

	results, err := svc.Generate(context.Background(), "A", 1)
	require.NoError(t, err)
	assert.Equal(t, models.MethodManual, results[0].Method)

	cache.SetProposal("A", forecast.ModelSES, models.MethodGrid, models.Parameters{"alpha": 0.2}, entry.Manual.DataHash, models.ProposalMeta{})
	entry, _ = svc.Snapshot("A", forecast.ModelSES)
	assert.Equal(t, models.MethodManual, entry.Selected)

	require.NoError(t, svc.Select("A", forecast.ModelSES, models.MethodGrid))
	entry, _ = svc.Snapshot("A", forecast.ModelSES)
	assert.Equal(t, models.MethodGrid, entry.Selected)

	assert.Equal(t, utils.KindNotFound, utils.KindOf(svc.Select("A", forecast.ModelSES, models.MethodAI)))
	assert.Equal(t, utils.KindInvalid, utils.KindOf(svc.Select("A", forecast.ModelSES, "newest")))
	assert.Equal(t, utils.KindNotFound, utils.KindOf(svc.SetManual(context.Background(), "B", forecast.ModelSES, nil)))
}

func TestEnqueueCoalescesAndTriggers(t *testing.T) {
	store := &storeStub{obs: append(monthly("A", 1, 2, 3), monthly("B", 4, 5, 6)...)}
	trigger := &triggerStub{}
	svc, _, _ := newTestService(store, trigger, forecast.ModelSES)

	n, err := svc.Enqueue(context.Background(), []string{"A", "A", " "}, "upload")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, svc.QueueSize())
	assert.Equal(t, 1, trigger.calls)

	n, err = svc.Enqueue(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, svc.QueueSize())

	items := svc.QueueItems()
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].SKU)
	assert.Equal(t, "manual", items[0].Reason)

	_, err = svc.Enqueue(context.Background(), []string{" "}, "upload")
	assert.Equal(t, utils.KindInvalid, utils.KindOf(err))

	store.err = errors.New("boom")
	_, err = svc.Enqueue(context.Background(), nil, "import")
	assert.Equal(t, utils.KindUnavailable, utils.KindOf(err))
}

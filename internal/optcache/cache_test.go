package optcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/fingerprint"
	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

func observationsFor(sku string, values ...float64) []models.Observation {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Observation, len(values))
	for i, v := range values {
		out[i] = models.Observation{SKU: sku, Date: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

func testDescriptors(t *testing.T) []forecast.ModelDescriptor {
	t.Helper()
	r := forecast.NewRegistry()
	var out []forecast.ModelDescriptor
	for _, id := range []string{forecast.ModelSES, forecast.ModelHolt} {
		desc, err := r.Describe(id)
		require.NoError(t, err)
		out = append(out, desc)
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func TestSetProposalSelectsByPriority(t *testing.T) {
	c := New(Options{})
	c.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.3}, "h1", models.ProposalMeta{})
	entry, ok := c.Snapshot("A", "ses")
	require.True(t, ok)
	assert.Equal(t, models.MethodGrid, entry.Selected)

	c.SetProposal("A", "ses", models.MethodAI, models.Parameters{"alpha": 0.5}, "h1", models.ProposalMeta{Reasoning: "trend"})
	entry, _ = c.Snapshot("A", "ses")
	assert.Equal(t, models.MethodAI, entry.Selected)
	assert.True(t, c.IsValid("A", "ses", "h1"))
	assert.False(t, c.IsValid("A", "ses", "h2"))

	// a grid result arriving after the advisory one does not demote it
	c.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.2}, "h1", models.ProposalMeta{})
	entry, _ = c.Snapshot("A", "ses")
	assert.Equal(t, models.MethodAI, entry.Selected)
	assert.Equal(t, 0.2, entry.Grid.Parameters["alpha"])
}

func TestManualSelectionSticks(t *testing.T) {
	c := New(Options{})
	c.SetProposal("A", "ses", models.MethodManual, models.Parameters{"alpha": 0.9}, "h1", models.ProposalMeta{})
	c.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.3}, "h1", models.ProposalMeta{})
	c.SetProposal("A", "ses", models.MethodAI, models.Parameters{"alpha": 0.4}, "h1", models.ProposalMeta{})

	entry, ok := c.Snapshot("A", "ses")
	require.True(t, ok)
	assert.Equal(t, models.MethodManual, entry.Selected)
	require.NotNil(t, entry.Grid)
	require.NotNil(t, entry.AI)
	assert.Equal(t, 0.9, entry.SelectedProposal().Parameters["alpha"])
}

func TestSelectPinsExplicitChoice(t *testing.T) {
	c := New(Options{})
	c.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.3}, "h1", models.ProposalMeta{})
	assert.False(t, c.Select("A", "ses", models.MethodAI))
	assert.True(t, c.Select("A", "ses", models.MethodGrid))

	c.SetProposal("A", "ses", models.MethodAI, models.Parameters{"alpha": 0.4}, "h1", models.ProposalMeta{})
	entry, _ := c.Snapshot("A", "ses")
	assert.Equal(t, models.MethodGrid, entry.Selected)
}

func TestStaleProposalRanksBelowCurrentData(t *testing.T) {
	c := New(Options{})
	c.SetProposal("A", "ses", models.MethodAI, models.Parameters{"alpha": 0.5}, "old", models.ProposalMeta{})
	c.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.3}, "new", models.ProposalMeta{})

	entry, _ := c.Snapshot("A", "ses")
	assert.Equal(t, models.MethodGrid, entry.Selected)
	assert.True(t, c.IsValid("A", "ses", "new"))
}

func TestLateStaleWriteKeepsCurrentSelection(t *testing.T) {
	c := New(Options{})
	obs := observationsFor("A", 10, 12, 14, 16)
	c.Reconcile(obs, testDescriptors(t))
	hash, ok := c.DataHash("A")
	require.True(t, ok)

	c.SetProposal("A", forecast.ModelSES, models.MethodGrid, models.Parameters{"alpha": 0.3}, hash, models.ProposalMeta{})
	// an advisory reply computed against older data arrives last
	c.SetProposal("A", forecast.ModelSES, models.MethodAI, models.Parameters{"alpha": 0.7}, "older", models.ProposalMeta{})

	entry, ok := c.Snapshot("A", forecast.ModelSES)
	require.True(t, ok)
	assert.Equal(t, models.MethodGrid, entry.Selected)
	require.NotNil(t, entry.AI)
	assert.Equal(t, "older", entry.AI.DataHash)
}

func TestExpectedAccuracyPolicy(t *testing.T) {
	c := New(Options{Policy: ExpectedAccuracyPolicy{}})
	c.SetProposal("A", "ses", models.MethodAI, models.Parameters{"alpha": 0.5}, "h1", models.ProposalMeta{ExpectedAccuracy: ptr(80)})
	c.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.3}, "h1", models.ProposalMeta{ExpectedAccuracy: ptr(91)})

	entry, _ := c.Snapshot("A", "ses")
	assert.Equal(t, models.MethodGrid, entry.Selected)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New(Options{})
	params := models.Parameters{"alpha": 0.3}
	c.SetProposal("A", "ses", models.MethodGrid, params, "h1", models.ProposalMeta{Confidence: ptr(70)})
	params["alpha"] = 0.99

	entry, _ := c.Snapshot("A", "ses")
	assert.Equal(t, 0.3, entry.Grid.Parameters["alpha"])
	entry.Grid.Parameters["alpha"] = 0.01
	*entry.Grid.Confidence = 1

	again, _ := c.Snapshot("A", "ses")
	assert.Equal(t, 0.3, again.Grid.Parameters["alpha"])
	assert.Equal(t, 70.0, *again.Grid.Confidence)
	assert.Equal(t, 0.3, c.GetProposal("A", "ses", models.MethodGrid).Parameters["alpha"])
	assert.Nil(t, c.GetProposal("A", "ses", models.MethodAI))
}

func TestVersionBumpsAndSubscribersHearIt(t *testing.T) {
	c := New(Options{})
	ch, cancel := c.Subscribe()
	defer cancel()

	before := c.Version()
	c.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.3}, "h1", models.ProposalMeta{})
	assert.Equal(t, before+1, c.Version())

	select {
	case v := <-ch:
		assert.Equal(t, before+1, v)
	case <-time.After(time.Second):
		t.Fatal("expected version notification")
	}

	c.Invalidate("A")
	c.Invalidate("A")
	assert.Equal(t, before+3, c.Version())
	assert.Equal(t, before+3, <-ch)
}

func TestReconcileIsIdempotentWithoutRehashing(t *testing.T) {
	c := New(Options{})
	descriptors := testDescriptors(t)
	obs := append(observationsFor("A", 10, 12, 14, 16, 18), observationsFor("B", 5, 5, 6, 6)...)

	first := c.Reconcile(obs, descriptors)
	computed := c.HashComputations()
	assert.Equal(t, uint64(2), computed)
	assert.Equal(t, 2, first.Fingerprint.SKUCount)

	second := c.Reconcile(obs, descriptors)
	assert.Equal(t, computed, c.HashComputations())
	assert.Equal(t, first.Fingerprint.GlobalHash, second.Fingerprint.GlobalHash)
	assert.Equal(t, first.ValidEntries, second.ValidEntries)

	// a change to the model set forces a rebuild even on identical data
	c.Reconcile(obs, descriptors[:1])
	assert.Equal(t, computed+2, c.HashComputations())
}

func TestNeedsOptimizationTracksProposals(t *testing.T) {
	c := New(Options{})
	descriptors := testDescriptors(t)
	obs := append(observationsFor("B", 5, 5, 6, 6), observationsFor("A", 10, 12, 14, 16, 18)...)
	obs = append(obs, observationsFor("C", 1, 2)...)

	pending := c.NeedsOptimization(obs, descriptors)
	require.Len(t, pending, 2)
	assert.Equal(t, "A", pending[0].SKU)
	assert.Equal(t, []string{forecast.ModelSES, forecast.ModelHolt}, pending[0].Models)
	assert.Equal(t, "B", pending[1].SKU)

	hashA, ok := c.DataHash("A")
	require.True(t, ok)
	assert.Equal(t, fingerprint.SKUDataHash([]float64{10, 12, 14, 16, 18}), hashA)

	c.SetProposal("A", forecast.ModelSES, models.MethodGrid, models.Parameters{"alpha": 0.3}, hashA, models.ProposalMeta{})
	c.SetProposal("A", forecast.ModelHolt, models.MethodGrid, models.Parameters{"alpha": 0.3, "beta": 0.1}, hashA, models.ProposalMeta{})
	assert.True(t, c.Manifest().IsValid("A", forecast.ModelSES))

	computed := c.HashComputations()
	pending = c.NeedsOptimization(obs, descriptors)
	assert.Equal(t, computed, c.HashComputations())
	require.Len(t, pending, 1)
	assert.Equal(t, "B", pending[0].SKU)

	// new data for A makes both its entries stale
	changed := append(obs, observationsFor("A", 10, 12, 14, 16, 18, 40)[5])
	pending = c.NeedsOptimization(changed, descriptors)
	require.Len(t, pending, 2)
	assert.Equal(t, "A", pending[0].SKU)
	assert.False(t, c.Manifest().IsValid("A", forecast.ModelSES))
}

func TestReconcileSkipsModelsNeedingMoreHistory(t *testing.T) {
	c := New(Options{SeasonalPeriod: 4})
	r := forecast.NewRegistry()
	hw, err := r.Describe(forecast.ModelHoltWinters)
	require.NoError(t, err)

	pending := c.NeedsOptimization(observationsFor("A", 1, 2, 3, 4, 5, 6), []forecast.ModelDescriptor{hw})
	assert.Empty(t, pending)

	// two seasons train the model but leave nothing to validate a candidate on
	pending = c.NeedsOptimization(observationsFor("A", 1, 2, 3, 4, 5, 6, 7, 8), []forecast.ModelDescriptor{hw})
	assert.Empty(t, pending)

	pending = c.NeedsOptimization(observationsFor("A", 1, 2, 3, 4, 5, 6, 7, 8, 9), []forecast.ModelDescriptor{hw})
	require.Len(t, pending, 1)
}

func TestReconcilePrunesVanishedSKUs(t *testing.T) {
	c := New(Options{})
	descriptors := testDescriptors(t)
	c.SetProposal("GONE", forecast.ModelSES, models.MethodGrid, models.Parameters{"alpha": 0.3}, "h", models.ProposalMeta{})

	c.Reconcile(observationsFor("A", 1, 2, 3), descriptors)
	_, ok := c.Snapshot("GONE", forecast.ModelSES)
	assert.False(t, ok)
}

func TestInvalidateRemovesManifestEntries(t *testing.T) {
	c := New(Options{})
	descriptors := testDescriptors(t)
	obs := observationsFor("A", 1, 2, 3, 4)
	c.Reconcile(obs, descriptors)
	hash, _ := c.DataHash("A")
	c.SetProposal("A", forecast.ModelSES, models.MethodGrid, models.Parameters{"alpha": 0.3}, hash, models.ProposalMeta{})
	require.True(t, c.Manifest().IsValid("A", forecast.ModelSES))

	c.Invalidate("A")
	assert.False(t, c.Manifest().IsValid("A", forecast.ModelSES))
	assert.Empty(t, c.SKUs())

	c.SetProposal("A", forecast.ModelSES, models.MethodGrid, models.Parameters{"alpha": 0.3}, hash, models.ProposalMeta{})
	c.Reset()
	assert.Empty(t, c.Entries())
	assert.Empty(t, c.Manifest().ValidEntries)
}

func TestConcurrentWritesStayConsistent(t *testing.T) {
	c := New(Options{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.3}, "h", models.ProposalMeta{})
		}()
		go func() {
			defer wg.Done()
			c.SetProposal("A", "ses", models.MethodAI, models.Parameters{"alpha": 0.5}, "h", models.ProposalMeta{})
		}()
	}
	wg.Wait()

	entry, _ := c.Snapshot("A", "ses")
	assert.Equal(t, models.MethodAI, entry.Selected)
	assert.Equal(t, uint64(100), c.Version())
}

func TestPersistAndRestore(t *testing.T) {
	provider := cache.NewMemoryProvider()
	ctx := context.Background()

	src := New(Options{})
	src.SetProposal("A", "ses", models.MethodManual, models.Parameters{"alpha": 0.7}, "h1", models.ProposalMeta{})
	src.SetProposal("A", "ses", models.MethodGrid, models.Parameters{"alpha": 0.3}, "h1", models.ProposalMeta{Confidence: ptr(88)})
	require.NoError(t, src.Persist(ctx, provider))

	dst := New(Options{})
	restored, err := dst.Restore(ctx, provider)
	require.NoError(t, err)
	require.True(t, restored)

	entry, ok := dst.Snapshot("A", "ses")
	require.True(t, ok)
	assert.Equal(t, models.MethodManual, entry.Selected)
	assert.Equal(t, 88.0, *entry.Grid.Confidence)

	// the pin survives the round trip
	dst.SetProposal("A", "ses", models.MethodAI, models.Parameters{"alpha": 0.5}, "h1", models.ProposalMeta{})
	entry, _ = dst.Snapshot("A", "ses")
	assert.Equal(t, models.MethodManual, entry.Selected)

	empty := New(Options{})
	restored, err = empty.Restore(ctx, cache.NoopProvider{})
	require.NoError(t, err)
	assert.False(t, restored)
}

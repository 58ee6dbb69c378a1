package optcache

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/fingerprint"
	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Manifest returns a copy of the last reconciled manifest.
func (c *Cache) Manifest() models.CacheManifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyManifest(c.manifest)
}

// Reconcile brings the manifest in line with observations. When neither the
// dataset fingerprint nor the optimisable model set changed since the last
// call, the stored manifest is returned without hashing any SKU. Otherwise
// every SKU hash is recomputed, entries of vanished SKUs are pruned and the
// valid set is rebuilt.
func (c *Cache) Reconcile(observations []models.Observation, descriptors []forecast.ModelDescriptor) models.CacheManifest {
	fp := fingerprint.Global(observations)
	key := descriptorSetKey(descriptors)

	c.mu.RLock()
	if c.manifestReady && c.manifest.Fingerprint.GlobalHash == fp.GlobalHash && c.descriptorKey == key {
		manifest := copyManifest(c.manifest)
		c.mu.RUnlock()
		return manifest
	}
	c.mu.RUnlock()

	grouped := models.GroupBySKU(observations)
	hashes := make(map[string]string, len(grouped))
	lengths := make(map[string]int, len(grouped))
	for sku, series := range grouped {
		lengths[sku] = len(series)
		if len(series) < minReconcileObservations {
			continue
		}
		hashes[sku] = fingerprint.SKUDataHash(models.Values(series))
		c.hashComputations.Add(1)
	}

	c.mu.Lock()
	pruned := 0
	for sku := range c.entries {
		if _, ok := grouped[sku]; !ok {
			c.deleteSKULocked(sku)
			pruned++
		}
	}

	valid := make(map[string]struct{})
	for sku, hash := range hashes {
		for _, desc := range descriptors {
			if !desc.Optimizable() {
				continue
			}
			if c.isValidLocked(sku, desc.ID, hash) {
				valid[models.EntryKey(sku, desc.ID)] = struct{}{}
			}
		}
	}

	c.manifest = models.CacheManifest{
		Fingerprint:   fp,
		ValidEntries:  valid,
		LastValidated: time.Now().UTC(),
	}
	c.manifestReady = true
	c.descriptorKey = key
	c.skuHashes = hashes
	c.skuLengths = lengths
	manifest := copyManifest(c.manifest)
	c.mu.Unlock()

	c.logger.Debug("manifest rebuilt",
		slog.Int("skus", len(hashes)),
		slog.Int("valid_entries", len(valid)),
		slog.Int("pruned_skus", pruned),
	)
	if pruned > 0 {
		c.bump()
	}
	return manifest
}

// NeedsOptimization reconciles and lists, per SKU in lexical order, the
// optimisable models whose selected proposal is missing or stale. Models the
// SKU's series is too short to tune, as decided by ModelDescriptor.Tunable,
// are left out so every listed pair can be completed by a grid job.
func (c *Cache) NeedsOptimization(observations []models.Observation, descriptors []forecast.ModelDescriptor) []models.PendingWork {
	c.Reconcile(observations, descriptors)

	c.mu.RLock()
	defer c.mu.RUnlock()

	skus := make([]string, 0, len(c.skuHashes))
	for sku := range c.skuHashes {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	var pending []models.PendingWork
	for _, sku := range skus {
		var ids []string
		for _, desc := range descriptors {
			if !desc.Optimizable() {
				continue
			}
			if !desc.Tunable(c.skuLengths[sku], c.seasonalPeriod) {
				continue
			}
			if _, ok := c.manifest.ValidEntries[models.EntryKey(sku, desc.ID)]; ok {
				continue
			}
			ids = append(ids, desc.ID)
		}
		if len(ids) > 0 {
			pending = append(pending, models.PendingWork{SKU: sku, Models: ids})
		}
	}
	return pending
}

// DataHash returns the SKU hash recorded by the last reconcile.
func (c *Cache) DataHash(sku string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.skuHashes[sku]
	return hash, ok
}

func descriptorSetKey(descriptors []forecast.ModelDescriptor) string {
	ids := make([]string, 0, len(descriptors))
	for _, desc := range descriptors {
		if desc.Optimizable() {
			ids = append(ids, desc.ID)
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func copyManifest(m models.CacheManifest) models.CacheManifest {
	valid := make(map[string]struct{}, len(m.ValidEntries))
	for key := range m.ValidEntries {
		valid[key] = struct{}{}
	}
	m.ValidEntries = valid
	return m
}

package optcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

// SnapshotKey is the provider key holding the persisted cache.
var SnapshotKey = cache.Key("optcache", "v1")

type snapshot struct {
	Entries map[string]map[string]models.CacheEntry `json:"entries"`
	Pinned  []string                                `json:"pinned,omitempty"`
}

// Persist writes every entry to provider. The manifest is derived state and
// is not stored.
func (c *Cache) Persist(ctx context.Context, provider cache.Provider) error {
	c.mu.RLock()
	snap := snapshot{Entries: make(map[string]map[string]models.CacheEntry, len(c.entries))}
	for sku, byModel := range c.entries {
		copied := make(map[string]models.CacheEntry, len(byModel))
		for id, entry := range byModel {
			copied[id] = cloneEntry(entry)
		}
		snap.Entries[sku] = copied
	}
	for key, pinned := range c.pinned {
		if pinned {
			snap.Pinned = append(snap.Pinned, key)
		}
	}
	c.mu.RUnlock()

	if err := cache.SetJSON(ctx, provider, SnapshotKey, snap, 0); err != nil {
		return fmt.Errorf("persist optimisation cache: %w", err)
	}
	return nil
}

// Restore replaces the in-memory entries with the persisted snapshot. A missing
// snapshot leaves the cache untouched and reports false. The manifest is
// rebuilt on the next Reconcile.
func (c *Cache) Restore(ctx context.Context, provider cache.Provider) (bool, error) {
	var snap snapshot
	err := cache.GetJSON(ctx, provider, SnapshotKey, &snap)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load optimisation cache: %w", err)
	}

	entries := make(map[string]map[string]models.CacheEntry, len(snap.Entries))
	for sku, byModel := range snap.Entries {
		if len(byModel) == 0 {
			continue
		}
		entries[sku] = byModel
	}
	pinned := make(map[string]bool, len(snap.Pinned))
	for _, key := range snap.Pinned {
		pinned[key] = true
	}

	c.mu.Lock()
	c.entries = entries
	c.pinned = pinned
	c.resetManifestLocked()
	c.mu.Unlock()
	c.bump()
	return true, nil
}

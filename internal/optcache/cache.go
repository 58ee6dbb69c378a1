// Package optcache stores per SKU/model parameter proposals and derives which
// pairs still need optimisation after a data change.
package optcache

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// minReconcileObservations is the shortest series considered for optimisation.
const minReconcileObservations = 3

// Options configures a Cache.
type Options struct {
	Policy         SelectionPolicy
	SeasonalPeriod int
	Logger         *slog.Logger
}

// Cache is the optimisation cache plus its derived manifest. All mutation goes
// through SetProposal, Select, Invalidate, Reset, Restore and Reconcile, each
// of which swaps whole entries under the lock so readers never see a partial
// entry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[string]models.CacheEntry
	pinned  map[string]bool

	manifest      models.CacheManifest
	manifestReady bool
	descriptorKey string
	skuHashes     map[string]string
	skuLengths    map[string]int

	policy         SelectionPolicy
	seasonalPeriod int
	logger         *slog.Logger

	version          atomic.Uint64
	hashComputations atomic.Uint64

	subMu       sync.Mutex
	subscribers map[int]chan uint64
	nextSub     int
}

// New constructs an empty Cache.
func New(opts Options) *Cache {
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		entries:        make(map[string]map[string]models.CacheEntry),
		pinned:         make(map[string]bool),
		skuHashes:      make(map[string]string),
		skuLengths:     make(map[string]int),
		policy:         opts.Policy,
		seasonalPeriod: opts.SeasonalPeriod,
		logger:         opts.Logger,
		subscribers:    make(map[int]chan uint64),
	}
}

// GetProposal returns a copy of one method's proposal, or nil.
func (c *Cache) GetProposal(sku, modelID string, method models.Method) *models.ParameterProposal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[sku][modelID]
	if !ok {
		return nil
	}
	return cloneProposal(entry.Proposal(method))
}

// Snapshot returns a deep copy of the entry for sku/modelID.
func (c *Cache) Snapshot(sku, modelID string) (models.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[sku][modelID]
	if !ok {
		return models.CacheEntry{}, false
	}
	return cloneEntry(entry), true
}

// SetProposal overwrites one method's slot. Manual writes pin the selection to
// manual; automated writes re-run the selection policy only while the entry is
// unpinned.
func (c *Cache) SetProposal(sku, modelID string, method models.Method, params models.Parameters, dataHash string, meta models.ProposalMeta) {
	proposal := &models.ParameterProposal{
		Parameters:       params.Clone(),
		DataHash:         dataHash,
		Timestamp:        time.Now().UTC(),
		Confidence:       cloneFloat(meta.Confidence),
		Reasoning:        meta.Reasoning,
		ExpectedAccuracy: cloneFloat(meta.ExpectedAccuracy),
		Method:           method,
	}

	c.mu.Lock()
	key := models.EntryKey(sku, modelID)
	entry := c.entries[sku][modelID]
	switch method {
	case models.MethodManual:
		entry.Manual = proposal
	case models.MethodGrid:
		entry.Grid = proposal
	case models.MethodAI:
		entry.AI = proposal
	default:
		c.mu.Unlock()
		c.logger.Warn("ignoring proposal with unknown method", slog.String("method", string(method)))
		return
	}

	switch {
	case method == models.MethodManual:
		entry.Selected = models.MethodManual
		c.pinned[key] = true
	case !c.pinned[key]:
		current := dataHash
		if recorded, ok := c.skuHashes[sku]; ok {
			current = recorded
		}
		entry.Selected = c.policy.Select(entry, current)
	}

	c.storeLocked(sku, modelID, entry)
	c.mu.Unlock()
	c.bump()
}

// Select points the entry at method explicitly and pins it against automated
// reselection. It reports false when the method has no proposal.
func (c *Cache) Select(sku, modelID string, method models.Method) bool {
	c.mu.Lock()
	entry, ok := c.entries[sku][modelID]
	if !ok || entry.Proposal(method) == nil {
		c.mu.Unlock()
		return false
	}
	entry.Selected = method
	c.pinned[models.EntryKey(sku, modelID)] = true
	c.storeLocked(sku, modelID, entry)
	c.mu.Unlock()
	c.bump()
	return true
}

// IsValid reports whether the selected proposal exists and was computed for
// currentDataHash.
func (c *Cache) IsValid(sku, modelID, currentDataHash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isValidLocked(sku, modelID, currentDataHash)
}

// Invalidate deletes every entry of sku.
func (c *Cache) Invalidate(sku string) {
	c.mu.Lock()
	c.deleteSKULocked(sku)
	c.mu.Unlock()
	c.bump()
}

// Reset drops all entries and the manifest, as after a full dataset replacement.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]map[string]models.CacheEntry)
	c.pinned = make(map[string]bool)
	c.resetManifestLocked()
	c.mu.Unlock()
	c.bump()
}

// Version is a monotonic counter bumped by every mutation.
func (c *Cache) Version() uint64 {
	return c.version.Load()
}

// HashComputations counts per-SKU data hashes computed by Reconcile.
func (c *Cache) HashComputations() uint64 {
	return c.hashComputations.Load()
}

// Subscribe delivers the new version after each mutation. Slow subscribers
// miss intermediate versions rather than block writers. The returned func
// unsubscribes.
func (c *Cache) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
		}
	}
}

// Entries returns a deep copy of every entry, keyed by sku then model.
func (c *Cache) Entries() map[string]map[string]models.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]models.CacheEntry, len(c.entries))
	for sku, byModel := range c.entries {
		copied := make(map[string]models.CacheEntry, len(byModel))
		for id, entry := range byModel {
			copied[id] = cloneEntry(entry)
		}
		out[sku] = copied
	}
	return out
}

// SKUs lists the SKUs holding at least one entry.
func (c *Cache) SKUs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	skus := make([]string, 0, len(c.entries))
	for sku := range c.entries {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func (c *Cache) bump() {
	v := c.version.Add(1)
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

func (c *Cache) isValidLocked(sku, modelID, hash string) bool {
	entry, ok := c.entries[sku][modelID]
	if !ok {
		return false
	}
	selected := entry.SelectedProposal()
	return selected != nil && selected.DataHash == hash
}

func (c *Cache) storeLocked(sku, modelID string, entry models.CacheEntry) {
	byModel, ok := c.entries[sku]
	if !ok {
		byModel = make(map[string]models.CacheEntry)
		c.entries[sku] = byModel
	}
	byModel[modelID] = entry

	if !c.manifestReady {
		return
	}
	key := models.EntryKey(sku, modelID)
	if hash, known := c.skuHashes[sku]; known && c.isValidLocked(sku, modelID, hash) {
		c.manifest.ValidEntries[key] = struct{}{}
	} else {
		delete(c.manifest.ValidEntries, key)
	}
}

func (c *Cache) deleteSKULocked(sku string) {
	for modelID := range c.entries[sku] {
		key := models.EntryKey(sku, modelID)
		delete(c.pinned, key)
		if c.manifestReady {
			delete(c.manifest.ValidEntries, key)
		}
	}
	delete(c.entries, sku)
}

func (c *Cache) resetManifestLocked() {
	c.manifest = models.CacheManifest{}
	c.manifestReady = false
	c.descriptorKey = ""
	c.skuHashes = make(map[string]string)
	c.skuLengths = make(map[string]int)
}

func cloneEntry(entry models.CacheEntry) models.CacheEntry {
	return models.CacheEntry{
		Manual:   cloneProposal(entry.Manual),
		Grid:     cloneProposal(entry.Grid),
		AI:       cloneProposal(entry.AI),
		Selected: entry.Selected,
	}
}

func cloneProposal(p *models.ParameterProposal) *models.ParameterProposal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Parameters = p.Parameters.Clone()
	cp.Confidence = cloneFloat(p.Confidence)
	cp.ExpectedAccuracy = cloneFloat(p.ExpectedAccuracy)
	return &cp
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

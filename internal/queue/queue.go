// Package queue holds the coalescing set of SKUs awaiting optimisation.
package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Queue keeps at most one item per SKU. Re-enqueueing a SKU replaces its item
// and gives it a fresh sequence number, which lets a worker remove only the
// item it actually processed.
type Queue struct {
	mu    sync.Mutex
	items map[string]models.QueueItem
	seq   uint64
	now   func() time.Time
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{items: make(map[string]models.QueueItem), now: time.Now}
}

// Enqueue adds or refreshes the item for sku.
func (q *Queue) Enqueue(sku, reason string) models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	item := models.QueueItem{SKU: sku, Reason: reason, EnqueuedAt: q.now().UTC(), Seq: q.seq}
	q.items[sku] = item
	return item
}

// EnqueueAll enqueues every sku with the same reason.
func (q *Queue) EnqueueAll(skus []string, reason string) {
	for _, sku := range skus {
		q.Enqueue(sku, reason)
	}
}

// Peek returns the current items ordered by enqueue sequence without removing them.
func (q *Queue) Peek() []models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sortedLocked()
}

// DequeueAll removes and returns every item ordered by enqueue sequence.
func (q *Queue) DequeueAll() []models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.sortedLocked()
	q.items = make(map[string]models.QueueItem)
	return items
}

// Remove deletes the item for sku if it still carries seq. It reports whether
// an item was removed; a newer enqueue for the same SKU survives.
func (q *Queue) Remove(sku string, seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[sku]
	if !ok || item.Seq != seq {
		return false
	}
	delete(q.items, sku)
	return true
}

// Contains reports whether sku is queued.
func (q *Queue) Contains(sku string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.items[sku]
	return ok
}

// Size returns the number of queued SKUs.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Rebuild replaces the contents with the given SKUs, as after a full dataset
// replacement.
func (q *Queue) Rebuild(skus []string, reason string) {
	q.mu.Lock()
	q.items = make(map[string]models.QueueItem, len(skus))
	q.mu.Unlock()
	q.EnqueueAll(skus, reason)
}

func (q *Queue) sortedLocked() []models.QueueItem {
	items := make([]models.QueueItem, 0, len(q.items))
	for _, item := range q.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	return items
}

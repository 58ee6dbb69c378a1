package optcache

import "github.com/miradorstack/mirador-forecast/internal/models"

// SelectionPolicy picks which proposal an unpinned entry points at after an
// automated write. currentHash is the SKU's reconciled data hash, or the
// writer's hash before the first reconcile; proposals computed for other data
// rank below it.
type SelectionPolicy interface {
	Select(entry models.CacheEntry, currentHash string) models.Method
}

// PriorityPolicy selects the first available method in Order.
type PriorityPolicy struct {
	Order []models.Method
}

// DefaultPolicy prefers advisory over grid over manual defaults.
func DefaultPolicy() PriorityPolicy {
	return PriorityPolicy{Order: []models.Method{models.MethodAI, models.MethodGrid, models.MethodManual}}
}

// Select implements SelectionPolicy.
func (p PriorityPolicy) Select(entry models.CacheEntry, currentHash string) models.Method {
	for _, method := range p.Order {
		if prop := entry.Proposal(method); prop != nil && prop.DataHash == currentHash {
			return method
		}
	}
	for _, method := range p.Order {
		if entry.Proposal(method) != nil {
			return method
		}
	}
	return ""
}

// ExpectedAccuracyPolicy selects the current proposal with the highest
// expected accuracy, breaking ties with Fallback.
type ExpectedAccuracyPolicy struct {
	Fallback PriorityPolicy
}

// Select implements SelectionPolicy.
func (p ExpectedAccuracyPolicy) Select(entry models.CacheEntry, currentHash string) models.Method {
	var (
		best     models.Method
		bestAcc  = -1.0
		fallback = p.Fallback
	)
	if len(fallback.Order) == 0 {
		fallback = DefaultPolicy()
	}
	for _, method := range fallback.Order {
		prop := entry.Proposal(method)
		if prop == nil || prop.DataHash != currentHash || prop.ExpectedAccuracy == nil {
			continue
		}
		if *prop.ExpectedAccuracy > bestAcc {
			best, bestAcc = method, *prop.ExpectedAccuracy
		}
	}
	if best != "" {
		return best
	}
	return fallback.Select(entry, currentHash)
}

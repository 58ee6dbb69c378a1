package models

import "time"

// Method identifies which optimiser produced a parameter proposal.
type Method string

const (
	MethodManual Method = "manual"
	MethodGrid   Method = "grid"
	MethodAI     Method = "ai"
)

// Valid reports whether m is one of the known proposal methods.
func (m Method) Valid() bool {
	switch m {
	case MethodManual, MethodGrid, MethodAI:
		return true
	default:
		return false
	}
}

// ParameterProposal is one method's suggested parameter set for a SKU/model pair.
type ParameterProposal struct {
	Parameters       Parameters `json:"parameters"`
	DataHash         string     `json:"dataHash"`
	Timestamp        time.Time  `json:"timestamp"`
	Confidence       *float64   `json:"confidence,omitempty"`
	Reasoning        string     `json:"reasoning,omitempty"`
	ExpectedAccuracy *float64   `json:"expectedAccuracy,omitempty"`
	Method           Method     `json:"method"`
}

// ProposalMeta carries the optional descriptive fields of a proposal.
type ProposalMeta struct {
	Confidence       *float64
	Reasoning        string
	ExpectedAccuracy *float64
}

// CacheEntry holds the per-method proposal slots for one SKU/model pair.
type CacheEntry struct {
	Manual   *ParameterProposal `json:"manual,omitempty"`
	Grid     *ParameterProposal `json:"grid,omitempty"`
	AI       *ParameterProposal `json:"ai,omitempty"`
	Selected Method             `json:"selected,omitempty"`
}

// Proposal returns the slot for method, or nil.
func (e CacheEntry) Proposal(method Method) *ParameterProposal {
	switch method {
	case MethodManual:
		return e.Manual
	case MethodGrid:
		return e.Grid
	case MethodAI:
		return e.AI
	default:
		return nil
	}
}

// SelectedProposal returns the proposal the selection pointer refers to.
func (e CacheEntry) SelectedProposal() *ParameterProposal {
	if e.Selected == "" {
		return nil
	}
	return e.Proposal(e.Selected)
}

// DatasetFingerprint summarises the whole observation set.
type DatasetFingerprint struct {
	GlobalHash     string    `json:"globalHash"`
	SKUCount       int       `json:"skuCount"`
	TotalRecords   int       `json:"totalRecords"`
	DateRangeStart time.Time `json:"dateRangeStart"`
	DateRangeEnd   time.Time `json:"dateRangeEnd"`
	Timestamp      time.Time `json:"timestamp"`
}

// CacheManifest indexes the SKU/model pairs whose selected proposal matches current data.
type CacheManifest struct {
	Fingerprint   DatasetFingerprint  `json:"datasetFingerprint"`
	ValidEntries  map[string]struct{} `json:"validEntries"`
	LastValidated time.Time           `json:"lastValidated"`
}

// IsValid reports whether the manifest lists the pair as valid.
func (m CacheManifest) IsValid(sku, modelID string) bool {
	_, ok := m.ValidEntries[EntryKey(sku, modelID)]
	return ok
}

// EntryKey builds the "sku:modelId" manifest key.
func EntryKey(sku, modelID string) string {
	return sku + ":" + modelID
}

// PendingWork lists the models of a SKU that still need optimisation.
type PendingWork struct {
	SKU    string
	Models []string
}

// QueueItem is a SKU awaiting optimisation.
type QueueItem struct {
	SKU        string    `json:"sku"`
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Seq        uint64    `json:"-"`
}

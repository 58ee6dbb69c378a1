package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Job is a self-contained unit of optimisation work. Series is a private copy
// so concurrent jobs never share buffers.
type Job struct {
	ID             uuid.UUID
	Method         models.Method
	SKU            string
	ModelID        string
	DataHash       string
	Series         []float64
	Parameters     models.Parameters
	SeasonalPeriod int
}

func newJob(method models.Method, sku, modelID, dataHash string, series []float64, params models.Parameters, seasonalPeriod int) Job {
	return Job{
		ID:             uuid.New(),
		Method:         method,
		SKU:            sku,
		ModelID:        modelID,
		DataHash:       dataHash,
		Series:         append([]float64(nil), series...),
		Parameters:     params.Clone(),
		SeasonalPeriod: seasonalPeriod,
	}
}

// Proposal is what a successful job asks the reducer to write.
type Proposal struct {
	Parameters models.Parameters
	Meta       models.ProposalMeta
}

// Envelope carries one job's outcome back to the reducer: exactly one of
// Proposal and Err is set.
type Envelope struct {
	JobID    uuid.UUID
	Job      Job
	Proposal *Proposal
	Err      error
	Elapsed  time.Duration
}

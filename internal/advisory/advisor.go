// Package advisory asks an external language model for parameter
// recommendations. Every failure is soft: callers fall back to grid results.
package advisory

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// minCredentialLength is the shortest key accepted by ValidateCredential.
const minCredentialLength = 20

// Request describes the model and data to optimise.
type Request struct {
	ModelID           string            `json:"modelId"`
	HistoricalValues  []float64         `json:"historicalValues"`
	CurrentParameters models.Parameters `json:"currentParameters"`
	SeasonalPeriod    int               `json:"seasonalPeriod"`
	BusinessContext   string            `json:"businessContext,omitempty"`
}

// Recommendation is the advisor's reply.
type Recommendation struct {
	OptimizedParameters models.Parameters `json:"optimizedParameters"`
	Confidence          float64           `json:"confidence"`
	Reasoning           string            `json:"reasoning"`
	Factors             []string          `json:"factors"`
	ExpectedAccuracy    float64           `json:"expectedAccuracy"`
}

// Meta converts r into cache proposal metadata.
func (r Recommendation) Meta() models.ProposalMeta {
	confidence, expected := r.Confidence, r.ExpectedAccuracy
	reasoning := r.Reasoning
	if len(r.Factors) > 0 {
		reasoning = strings.TrimSpace(reasoning + " Factors: " + strings.Join(r.Factors, ", ") + ".")
	}
	return models.ProposalMeta{
		Confidence:       &confidence,
		Reasoning:        reasoning,
		ExpectedAccuracy: &expected,
	}
}

// Advisor recommends parameters for one model of one SKU.
type Advisor interface {
	Recommend(ctx context.Context, req Request) (Recommendation, error)
}

// ValidateCredential performs the static key check that gates advisory
// dispatch. It never contacts the provider.
func ValidateCredential(key string) error {
	switch {
	case key == "":
		return errors.New("advisory credential is empty")
	case strings.IndexFunc(key, unicode.IsSpace) >= 0:
		return errors.New("advisory credential contains whitespace")
	case len(key) < minCredentialLength:
		return errors.New("advisory credential is too short")
	}
	return nil
}

package forecast

import (
	"fmt"
	"math"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Model is a trainable forecaster built from a descriptor and concrete parameters.
// A Model is not safe for concurrent use; parameter changes require a new instance.
type Model interface {
	ID() string
	Train(series []float64) error
	Predict(periods int) ([]float64, error)
	Validate(holdout []float64) (ValidationResult, error)
}

// ValidationResult scores predictions against a holdout window.
type ValidationResult struct {
	MAPE        float64   `json:"mape"`
	RMSE        float64   `json:"rmse"`
	MAE         float64   `json:"mae"`
	Accuracy    float64   `json:"accuracy"`
	Predictions []float64 `json:"predictions"`
	Actual      []float64 `json:"actual"`
}

// validate predicts len(holdout) steps from m and scores them.
func validate(m Model, holdout []float64) (ValidationResult, error) {
	if len(holdout) == 0 {
		return ValidationResult{}, fmt.Errorf("%s: empty holdout", m.ID())
	}
	predictions, err := m.Predict(len(holdout))
	if err != nil {
		return ValidationResult{}, err
	}
	result := Score(holdout, predictions)
	result.Predictions = predictions
	result.Actual = append([]float64(nil), holdout...)
	return result, nil
}

// checkSeries rejects non-finite values and series shorter than required.
func checkSeries(modelID string, series []float64, required int) error {
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.InvalidSeriesError{Index: i, Value: v}
		}
	}
	if len(series) < required {
		return &models.InsufficientDataError{ModelID: modelID, Required: required, Actual: len(series)}
	}
	return nil
}

func checkPeriods(periods int) error {
	if periods <= 0 {
		return fmt.Errorf("periods must be positive, got %d", periods)
	}
	return nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

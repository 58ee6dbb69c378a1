package forecast

import "github.com/miradorstack/mirador-forecast/internal/models"

// sesModel is simple exponential smoothing: a single smoothed level.
type sesModel struct {
	desc    ModelDescriptor
	alpha   float64
	level   float64
	trained bool
}

func newSES(desc ModelDescriptor, params models.Parameters, _ int) Model {
	return &sesModel{desc: desc, alpha: params.Float("alpha", 0.3)}
}

func (m *sesModel) ID() string { return m.desc.ID }

func (m *sesModel) Train(series []float64) error {
	if err := checkSeries(m.desc.ID, series, m.desc.MinObservations(0)); err != nil {
		return err
	}
	level := series[0]
	for _, x := range series[1:] {
		level = m.alpha*x + (1-m.alpha)*level
	}
	m.level = level
	m.trained = true
	return nil
}

func (m *sesModel) Predict(periods int) ([]float64, error) {
	if !m.trained {
		return nil, models.ErrNotTrained
	}
	if err := checkPeriods(periods); err != nil {
		return nil, err
	}
	out := make([]float64, periods)
	for i := range out {
		out[i] = m.level
	}
	return out, nil
}

func (m *sesModel) Validate(holdout []float64) (ValidationResult, error) {
	return validate(m, holdout)
}

// Level exposes the fitted level.
func (m *sesModel) Level() float64 { return m.level }

package forecast

import "github.com/miradorstack/mirador-forecast/internal/models"

// linearTrendModel is an ordinary least squares fit of value on time index.
type linearTrendModel struct {
	desc      ModelDescriptor
	slope     float64
	intercept float64
	n         int
	trained   bool
}

func newLinearTrend(desc ModelDescriptor, _ models.Parameters, _ int) Model {
	return &linearTrendModel{desc: desc}
}

func (m *linearTrendModel) ID() string { return m.desc.ID }

func (m *linearTrendModel) Train(series []float64) error {
	if err := checkSeries(m.desc.ID, series, m.desc.MinObservations(0)); err != nil {
		return err
	}
	n := float64(len(series))
	tMean := (n - 1) / 2
	yMean := mean(series)

	num, den := 0.0, 0.0
	for t, y := range series {
		dt := float64(t) - tMean
		num += dt * (y - yMean)
		den += dt * dt
	}
	slope := 0.0
	if den != 0 {
		slope = num / den
	}
	m.slope = slope
	m.intercept = yMean - slope*tMean
	m.n = len(series)
	m.trained = true
	return nil
}

func (m *linearTrendModel) Predict(periods int) ([]float64, error) {
	if !m.trained {
		return nil, models.ErrNotTrained
	}
	if err := checkPeriods(periods); err != nil {
		return nil, err
	}
	out := make([]float64, periods)
	for h := 1; h <= periods; h++ {
		out[h-1] = nonNegative(m.slope*float64(m.n-1+h) + m.intercept)
	}
	return out, nil
}

func (m *linearTrendModel) Validate(holdout []float64) (ValidationResult, error) {
	return validate(m, holdout)
}

package forecast

import "github.com/miradorstack/mirador-forecast/internal/models"

// holtModel is Holt's linear trend method.
type holtModel struct {
	desc    ModelDescriptor
	alpha   float64
	beta    float64
	level   float64
	trend   float64
	trained bool
}

func newHolt(desc ModelDescriptor, params models.Parameters, _ int) Model {
	return &holtModel{
		desc:  desc,
		alpha: params.Float("alpha", 0.3),
		beta:  params.Float("beta", 0.1),
	}
}

func (m *holtModel) ID() string { return m.desc.ID }

func (m *holtModel) Train(series []float64) error {
	if err := checkSeries(m.desc.ID, series, m.desc.MinObservations(0)); err != nil {
		return err
	}
	level := series[0]
	trend := series[1] - series[0]
	for _, x := range series[1:] {
		prev := level
		level = m.alpha*x + (1-m.alpha)*(level+trend)
		trend = m.beta*(level-prev) + (1-m.beta)*trend
	}
	m.level, m.trend = level, trend
	m.trained = true
	return nil
}

func (m *holtModel) Predict(periods int) ([]float64, error) {
	if !m.trained {
		return nil, models.ErrNotTrained
	}
	if err := checkPeriods(periods); err != nil {
		return nil, err
	}
	out := make([]float64, periods)
	for h := 1; h <= periods; h++ {
		out[h-1] = m.level + float64(h)*m.trend
	}
	return out, nil
}

func (m *holtModel) Validate(holdout []float64) (ValidationResult, error) {
	return validate(m, holdout)
}

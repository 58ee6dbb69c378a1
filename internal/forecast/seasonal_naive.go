package forecast

import "github.com/miradorstack/mirador-forecast/internal/models"

// seasonalNaiveModel repeats the last observed season.
type seasonalNaiveModel struct {
	desc       ModelDescriptor
	period     int
	lastSeason []float64
	trained    bool
}

func newSeasonalNaive(desc ModelDescriptor, _ models.Parameters, seasonalPeriod int) Model {
	return &seasonalNaiveModel{desc: desc, period: seasonalPeriod}
}

func (m *seasonalNaiveModel) ID() string { return m.desc.ID }

func (m *seasonalNaiveModel) Train(series []float64) error {
	if err := checkSeries(m.desc.ID, series, m.desc.MinObservations(m.period)); err != nil {
		return err
	}
	m.lastSeason = append([]float64(nil), series[len(series)-m.period:]...)
	m.trained = true
	return nil
}

func (m *seasonalNaiveModel) Predict(periods int) ([]float64, error) {
	if !m.trained {
		return nil, models.ErrNotTrained
	}
	if err := checkPeriods(periods); err != nil {
		return nil, err
	}
	out := make([]float64, periods)
	for h := 0; h < periods; h++ {
		out[h] = m.lastSeason[h%m.period]
	}
	return out, nil
}

func (m *seasonalNaiveModel) Validate(holdout []float64) (ValidationResult, error) {
	return validate(m, holdout)
}

package forecast

import "github.com/miradorstack/mirador-forecast/internal/models"

// seasonalMovingAverageModel runs a recursive moving average on the
// deseasonalised series and reapplies the phase index to every step.
type seasonalMovingAverageModel struct {
	desc   ModelDescriptor
	window int
	period int

	indices        []float64
	deseasonalised []float64
	n              int
	trained        bool
}

func newSeasonalMovingAverage(desc ModelDescriptor, params models.Parameters, seasonalPeriod int) Model {
	return &seasonalMovingAverageModel{
		desc:   desc,
		window: params.Int("window", 3),
		period: seasonalPeriod,
	}
}

func (m *seasonalMovingAverageModel) ID() string { return m.desc.ID }

func (m *seasonalMovingAverageModel) Train(series []float64) error {
	required := m.desc.MinObservations(m.period)
	if m.window > required {
		required = m.window
	}
	if err := checkSeries(m.desc.ID, series, required); err != nil {
		return err
	}

	s := m.period
	overall := mean(series)
	phaseSums := make([]float64, s)
	phaseCounts := make([]int, s)
	for t, x := range series {
		phaseSums[t%s] += x
		phaseCounts[t%s]++
	}
	indices := make([]float64, s)
	for i := range indices {
		indices[i] = 1
		if overall != 0 && phaseCounts[i] > 0 {
			indices[i] = (phaseSums[i] / float64(phaseCounts[i])) / overall
		}
	}

	deseasonalised := make([]float64, len(series))
	for t, x := range series {
		idx := indices[t%s]
		if idx == 0 {
			deseasonalised[t] = overall
			continue
		}
		deseasonalised[t] = x / idx
	}

	m.indices = indices
	m.deseasonalised = deseasonalised
	m.n = len(series)
	m.trained = true
	return nil
}

func (m *seasonalMovingAverageModel) Predict(periods int) ([]float64, error) {
	if !m.trained {
		return nil, models.ErrNotTrained
	}
	if err := checkPeriods(periods); err != nil {
		return nil, err
	}
	smoothed := rollingMeans(m.deseasonalised[len(m.deseasonalised)-m.window:], periods)
	out := make([]float64, periods)
	for h := 1; h <= periods; h++ {
		out[h-1] = smoothed[h-1] * m.indices[(m.n+h-1)%m.period]
	}
	return out, nil
}

func (m *seasonalMovingAverageModel) Validate(holdout []float64) (ValidationResult, error) {
	return validate(m, holdout)
}

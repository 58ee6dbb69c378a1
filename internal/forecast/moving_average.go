package forecast

import "github.com/miradorstack/mirador-forecast/internal/models"

// movingAverageModel forecasts each step as the mean of the trailing window,
// feeding its own forecasts back into the window.
type movingAverageModel struct {
	desc    ModelDescriptor
	window  int
	history []float64
	trained bool
}

func newMovingAverage(desc ModelDescriptor, params models.Parameters, _ int) Model {
	return &movingAverageModel{desc: desc, window: params.Int("window", 3)}
}

func (m *movingAverageModel) ID() string { return m.desc.ID }

func (m *movingAverageModel) Train(series []float64) error {
	required := m.desc.MinObservations(0)
	if m.window > required {
		required = m.window
	}
	if err := checkSeries(m.desc.ID, series, required); err != nil {
		return err
	}
	m.history = append([]float64(nil), series...)
	m.trained = true
	return nil
}

func (m *movingAverageModel) Predict(periods int) ([]float64, error) {
	if !m.trained {
		return nil, models.ErrNotTrained
	}
	if err := checkPeriods(periods); err != nil {
		return nil, err
	}
	return rollingMeans(m.history[len(m.history)-m.window:], periods), nil
}

func (m *movingAverageModel) Validate(holdout []float64) (ValidationResult, error) {
	return validate(m, holdout)
}

// rollingMeans extrapolates by appending the window mean periods times.
// seed is copied; the caller's slice is never written.
func rollingMeans(seed []float64, periods int) []float64 {
	window := len(seed)
	buf := make([]float64, window, window+periods)
	copy(buf, seed)
	out := make([]float64, periods)
	for h := 0; h < periods; h++ {
		next := mean(buf[len(buf)-window:])
		buf = append(buf, next)
		out[h] = next
	}
	return out
}

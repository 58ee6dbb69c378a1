package forecast

import "github.com/miradorstack/mirador-forecast/internal/models"

const (
	SeasonalityAdditive       = "additive"
	SeasonalityMultiplicative = "multiplicative"
)

// holtWintersModel is triple exponential smoothing with additive or
// multiplicative seasonality.
type holtWintersModel struct {
	desc           ModelDescriptor
	alpha          float64
	beta           float64
	gamma          float64
	multiplicative bool
	period         int

	level    float64
	trend    float64
	seasonal []float64
	n        int
	trained  bool
}

func newHoltWinters(desc ModelDescriptor, params models.Parameters, seasonalPeriod int) Model {
	return &holtWintersModel{
		desc:           desc,
		alpha:          params.Float("alpha", 0.3),
		beta:           params.Float("beta", 0.1),
		gamma:          params.Float("gamma", 0.1),
		multiplicative: params.String("seasonalType", SeasonalityAdditive) == SeasonalityMultiplicative,
		period:         seasonalPeriod,
	}
}

func (m *holtWintersModel) ID() string { return m.desc.ID }

func (m *holtWintersModel) Train(series []float64) error {
	if err := checkSeries(m.desc.ID, series, m.desc.MinObservations(m.period)); err != nil {
		return err
	}
	s := m.period
	level, trend, seasonal := m.initialState(series)

	for t := s; t < len(series); t++ {
		x := series[t]
		phase := t % s
		prev := level
		if m.multiplicative {
			deseasonalised := x
			if seasonal[phase] != 0 {
				deseasonalised = x / seasonal[phase]
			}
			level = m.alpha*deseasonalised + (1-m.alpha)*(level+trend)
			trend = m.beta*(level-prev) + (1-m.beta)*trend
			if level != 0 {
				seasonal[phase] = m.gamma*(x/level) + (1-m.gamma)*seasonal[phase]
			}
			continue
		}
		level = m.alpha*(x-seasonal[phase]) + (1-m.alpha)*(level+trend)
		trend = m.beta*(level-prev) + (1-m.beta)*trend
		seasonal[phase] = m.gamma*(x-level) + (1-m.gamma)*seasonal[phase]
	}

	m.level, m.trend, m.seasonal = level, trend, seasonal
	m.n = len(series)
	m.trained = true
	return nil
}

// initialState derives level from the first season, trend from the mean
// cross-season delta over s², and per-phase seasonal indices from every
// complete season.
func (m *holtWintersModel) initialState(series []float64) (float64, float64, []float64) {
	s := m.period
	level := mean(series[:s])

	delta := 0.0
	for i := 0; i < s; i++ {
		delta += series[s+i] - series[i]
	}
	trend := delta / float64(s*s)

	seasons := len(series) / s
	seasonal := make([]float64, s)
	for j := 0; j < seasons; j++ {
		season := series[j*s : (j+1)*s]
		seasonMean := mean(season)
		for i, x := range season {
			if m.multiplicative {
				if seasonMean == 0 {
					seasonal[i]++
				} else {
					seasonal[i] += x / seasonMean
				}
				continue
			}
			seasonal[i] += x - seasonMean
		}
	}
	for i := range seasonal {
		seasonal[i] /= float64(seasons)
	}
	return level, trend, seasonal
}

func (m *holtWintersModel) Predict(periods int) ([]float64, error) {
	if !m.trained {
		return nil, models.ErrNotTrained
	}
	if err := checkPeriods(periods); err != nil {
		return nil, err
	}
	out := make([]float64, periods)
	for h := 1; h <= periods; h++ {
		phase := (m.n + h - 1) % m.period
		base := m.level + float64(h)*m.trend
		if m.multiplicative {
			out[h-1] = nonNegative(base * m.seasonal[phase])
		} else {
			out[h-1] = nonNegative(base + m.seasonal[phase])
		}
	}
	return out, nil
}

func (m *holtWintersModel) Validate(holdout []float64) (ValidationResult, error) {
	return validate(m, holdout)
}

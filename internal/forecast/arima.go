package forecast

import (
	"fmt"

	"github.com/sartorproj/goarima/arima"
	"github.com/sartorproj/goarima/autoarima"
	"github.com/sartorproj/goarima/sarima"
	"github.com/sartorproj/goarima/timeseries"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// minARIMAObservations gates non-seasonal ARIMA fitting.
const minARIMAObservations = 10

// Order is an ARIMA/SARIMA model order. Seasonal terms are ignored when M is zero.
type Order struct {
	P, D, Q    int
	SP, SD, SQ int
	M          int
	Auto       bool
}

func (o Order) String() string {
	if o.M > 0 {
		return fmt.Sprintf("(%d,%d,%d)(%d,%d,%d,%d)", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.M)
	}
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

// Estimator fits ARIMA-family models on a numeric series.
type Estimator interface {
	Fit(order Order, series []float64) (Fitted, error)
}

// Fitted is an estimated ARIMA-family model.
type Fitted interface {
	Predict(steps int) ([]float64, error)
	Order() Order
}

// GoARIMA estimates models with github.com/sartorproj/goarima.
type GoARIMA struct{}

// Fit implements Estimator.
func (GoARIMA) Fit(order Order, series []float64) (Fitted, error) {
	ts := timeseries.New(append([]float64(nil), series...))
	if order.Auto {
		cfg := autoarima.DefaultConfig()
		if order.M > 1 {
			cfg.Seasonal = true
			cfg.SeasonalM = order.M
		}
		result, err := autoarima.AutoARIMA(ts, cfg)
		if err != nil {
			return nil, err
		}
		if result == nil || (result.Model == nil && result.SeasonalModel == nil) {
			return nil, fmt.Errorf("auto order selection found no admissible model")
		}
		fitted := Order{P: result.P, D: result.D, Q: result.Q}
		if result.IsSeasonal {
			fitted.SP, fitted.SD, fitted.SQ, fitted.M = result.SP, result.SD, result.SQ, result.M
		}
		return &goarimaFit{predict: result.Predict, order: fitted}, nil
	}
	if order.M > 1 {
		model := sarima.New(order.P, order.D, order.Q, order.SP, order.SD, order.SQ, order.M)
		if err := model.Fit(ts); err != nil {
			return nil, err
		}
		return &goarimaFit{predict: model.Predict, order: order}, nil
	}
	model := arima.New(order.P, order.D, order.Q)
	if err := model.Fit(ts); err != nil {
		return nil, err
	}
	return &goarimaFit{predict: model.Predict, order: order}, nil
}

type goarimaFit struct {
	predict func(int) ([]float64, error)
	order   Order
}

func (f *goarimaFit) Predict(steps int) ([]float64, error) { return f.predict(steps) }
func (f *goarimaFit) Order() Order                         { return f.order }

// arimaModel adapts an Estimator to the Model interface.
type arimaModel struct {
	desc      ModelDescriptor
	estimator Estimator
	order     Order
	fitted    Fitted
}

func newARIMAFamily(estimator Estimator) builder {
	return func(desc ModelDescriptor, params models.Parameters, seasonalPeriod int) Model {
		order := Order{
			P:    params.Int("p", 1),
			D:    params.Int("d", 1),
			Q:    params.Int("q", 1),
			Auto: params.Bool("auto", false),
		}
		if desc.Seasonal {
			order.SP = params.Int("P", 1)
			order.SD = params.Int("D", 1)
			order.SQ = params.Int("Q", 1)
			order.M = seasonalPeriod
		}
		return &arimaModel{desc: desc, estimator: estimator, order: order}
	}
}

func (m *arimaModel) ID() string { return m.desc.ID }

func (m *arimaModel) Train(series []float64) error {
	if err := checkSeries(m.desc.ID, series, m.desc.MinObservations(m.order.M)); err != nil {
		return err
	}
	fitted, err := m.estimator.Fit(m.order, series)
	if err != nil {
		return fmt.Errorf("%s fit %s: %w", m.desc.ID, m.order, err)
	}
	m.fitted = fitted
	return nil
}

func (m *arimaModel) Predict(periods int) ([]float64, error) {
	if m.fitted == nil {
		return nil, models.ErrNotTrained
	}
	if err := checkPeriods(periods); err != nil {
		return nil, err
	}
	out, err := m.fitted.Predict(periods)
	if err != nil {
		return nil, fmt.Errorf("%s predict: %w", m.desc.ID, err)
	}
	if len(out) != periods {
		return nil, fmt.Errorf("%s predict: expected %d values, got %d", m.desc.ID, periods, len(out))
	}
	return out, nil
}

func (m *arimaModel) Validate(holdout []float64) (ValidationResult, error) {
	return validate(m, holdout)
}

// FittedOrder reports the estimated order; for auto selection it differs from
// the requested one.
func (m *arimaModel) FittedOrder() (Order, bool) {
	if m.fitted == nil {
		return Order{}, false
	}
	return m.fitted.Order(), true
}

// OrderReporter is implemented by models that select their own order.
type OrderReporter interface {
	FittedOrder() (Order, bool)
}

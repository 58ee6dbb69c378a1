package forecast

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Registered model identifiers.
const (
	ModelSES                   = "ses"
	ModelHolt                  = "holt"
	ModelMovingAverage         = "moving-average"
	ModelHoltWinters           = "holt-winters"
	ModelSeasonalNaive         = "seasonal-naive"
	ModelSeasonalMovingAverage = "seasonal-moving-average"
	ModelLinearTrend           = "linear-trend"
	ModelARIMA                 = "arima"
	ModelSARIMA                = "sarima"
)

// minSeriesLength is the floor every model shares.
const minSeriesLength = 3

// ParameterKind enumerates parameter value types.
type ParameterKind string

const (
	KindFloat  ParameterKind = "float"
	KindInt    ParameterKind = "int"
	KindChoice ParameterKind = "choice"
	KindBool   ParameterKind = "bool"
)

// ParameterDef describes one tunable parameter.
type ParameterDef struct {
	Name    string        `json:"name"`
	Label   string        `json:"label"`
	Kind    ParameterKind `json:"kind"`
	Default any           `json:"default"`
	Min     float64       `json:"min,omitempty"`
	Max     float64       `json:"max,omitempty"`
	Options []string      `json:"options,omitempty"`
}

type builder func(desc ModelDescriptor, params models.Parameters, seasonalPeriod int) Model

// ModelDescriptor is the immutable description of a registered model.
type ModelDescriptor struct {
	ID          string
	DisplayName string
	Parameters  []ParameterDef
	Seasonal    bool
	// Grid lists candidate values per parameter for grid search.
	Grid map[string][]any
	// MinObservations is the smallest trainable series for a seasonal period.
	MinObservations func(seasonalPeriod int) int

	build builder
}

// Optimizable reports whether the model has parameters worth searching.
func (d ModelDescriptor) Optimizable() bool {
	return len(d.Parameters) > 0
}

// MinHistory is the smallest trainable series for seasonalPeriod, or the
// shared floor when the descriptor declares none.
func (d ModelDescriptor) MinHistory(seasonalPeriod int) int {
	if d.MinObservations == nil {
		return minSeriesLength
	}
	return d.MinObservations(seasonalPeriod)
}

// Tunable reports whether n values leave at least one point to validate on
// after MinHistory, the least walk-forward search can work with.
func (d ModelDescriptor) Tunable(n, seasonalPeriod int) bool {
	return n > d.MinHistory(seasonalPeriod)
}

// Defaults returns the default parameter set.
func (d ModelDescriptor) Defaults() models.Parameters {
	params := make(models.Parameters, len(d.Parameters))
	for _, def := range d.Parameters {
		params[def.Name] = def.Default
	}
	return params
}

// Normalize fills defaults, clamps numeric values into range, rejects unknown
// choices and drops parameters the model does not declare.
func (d ModelDescriptor) Normalize(params models.Parameters) models.Parameters {
	out := make(models.Parameters, len(d.Parameters))
	for _, def := range d.Parameters {
		switch def.Kind {
		case KindFloat:
			out[def.Name] = def.clamp(params.Float(def.Name, def.defaultFloat()))
		case KindInt:
			v := params.Int(def.Name, int(math.Round(def.defaultFloat())))
			out[def.Name] = int(def.clamp(float64(v)))
		case KindChoice:
			choice := params.String(def.Name, "")
			if !def.allows(choice) {
				choice, _ = def.Default.(string)
			}
			out[def.Name] = choice
		case KindBool:
			fallback, _ := def.Default.(bool)
			out[def.Name] = params.Bool(def.Name, fallback)
		}
	}
	return out
}

// Candidates expands Grid into a deterministic cartesian product of normalised
// parameter sets. Parameters without grid values keep their defaults.
func (d ModelDescriptor) Candidates() []models.Parameters {
	names := make([]string, 0, len(d.Grid))
	for name, values := range d.Grid {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	candidates := []models.Parameters{d.Defaults()}
	if len(names) == 0 {
		return []models.Parameters{d.Normalize(candidates[0])}
	}
	for _, name := range names {
		next := make([]models.Parameters, 0, len(candidates)*len(d.Grid[name]))
		for _, base := range candidates {
			for _, value := range d.Grid[name] {
				c := base.Clone()
				c[name] = value
				next = append(next, c)
			}
		}
		candidates = next
	}
	out := make([]models.Parameters, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		n := d.Normalize(c)
		key := n.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

func (def ParameterDef) clamp(v float64) float64 {
	if def.Max <= def.Min {
		return v
	}
	return math.Min(def.Max, math.Max(def.Min, v))
}

func (def ParameterDef) defaultFloat() float64 {
	switch v := def.Default.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (def ParameterDef) allows(choice string) bool {
	for _, opt := range def.Options {
		if opt == choice {
			return true
		}
	}
	return false
}

// Registry maps model ids to descriptors.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]ModelDescriptor
	order []string
}

// RegistryOption customises NewRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	estimator Estimator
}

// WithEstimator replaces the ARIMA-family estimation backend.
func WithEstimator(est Estimator) RegistryOption {
	return func(o *registryOptions) { o.estimator = est }
}

// NewRegistry returns a registry holding the built-in model family.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{estimator: GoARIMA{}}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{descs: make(map[string]ModelDescriptor)}
	for _, desc := range builtinDescriptors(o.estimator) {
		r.Register(desc)
	}
	return r
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(desc ModelDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descs[desc.ID]; !exists {
		r.order = append(r.order, desc.ID)
	}
	r.descs[desc.ID] = desc
}

// Describe returns the descriptor for id.
func (r *Registry) Describe(id string) (ModelDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descs[id]
	if !ok {
		return ModelDescriptor{}, &models.UnknownModelError{ModelID: id}
	}
	return desc, nil
}

// Descriptors lists all descriptors in registration order.
func (r *Registry) Descriptors() []ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.descs[id])
	}
	return out
}

// Instantiate builds an untrained model from normalised parameters.
func (r *Registry) Instantiate(id string, params models.Parameters, seasonalPeriod int) (Model, error) {
	desc, err := r.Describe(id)
	if err != nil {
		return nil, err
	}
	if desc.Seasonal && seasonalPeriod < 2 {
		return nil, fmt.Errorf("%s requires a seasonal period of at least 2, got %d", id, seasonalPeriod)
	}
	if desc.build == nil {
		return nil, fmt.Errorf("%s has no constructor", id)
	}
	return desc.build(desc, desc.Normalize(params), seasonalPeriod), nil
}

func fixedMin(n int) func(int) int {
	return func(int) int { return n }
}

func seasonsMin(seasons int) func(int) int {
	return func(s int) int {
		if seasons*s < minSeriesLength {
			return minSeriesLength
		}
		return seasons * s
	}
}

func floatDef(name, label string, def, min, max float64) ParameterDef {
	return ParameterDef{Name: name, Label: label, Kind: KindFloat, Default: def, Min: min, Max: max}
}

func intDef(name, label string, def, min, max int) ParameterDef {
	return ParameterDef{Name: name, Label: label, Kind: KindInt, Default: def, Min: float64(min), Max: float64(max)}
}

func smoothingGrid(values ...float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func intGrid(values ...int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func builtinDescriptors(estimator Estimator) []ModelDescriptor {
	alphas := smoothingGrid(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9)
	return []ModelDescriptor{
		{
			ID:              ModelSES,
			DisplayName:     "Simple Exponential Smoothing",
			Parameters:      []ParameterDef{floatDef("alpha", "Smoothing (α)", 0.3, 0.01, 0.99)},
			Grid:            map[string][]any{"alpha": alphas},
			MinObservations: fixedMin(minSeriesLength),
			build:           newSES,
		},
		{
			ID:          ModelHolt,
			DisplayName: "Holt Linear Trend",
			Parameters: []ParameterDef{
				floatDef("alpha", "Level (α)", 0.3, 0.01, 0.99),
				floatDef("beta", "Trend (β)", 0.1, 0.01, 0.99),
			},
			Grid: map[string][]any{
				"alpha": smoothingGrid(0.1, 0.3, 0.5, 0.7, 0.9),
				"beta":  smoothingGrid(0.05, 0.1, 0.2, 0.3),
			},
			MinObservations: fixedMin(minSeriesLength),
			build:           newHolt,
		},
		{
			ID:              ModelMovingAverage,
			DisplayName:     "Moving Average",
			Parameters:      []ParameterDef{intDef("window", "Window", 3, 2, 24)},
			Grid:            map[string][]any{"window": intGrid(2, 3, 4, 5, 6, 8, 12)},
			MinObservations: fixedMin(minSeriesLength),
			build:           newMovingAverage,
		},
		{
			ID:          ModelHoltWinters,
			DisplayName: "Holt-Winters",
			Parameters: []ParameterDef{
				floatDef("alpha", "Level (α)", 0.3, 0.01, 0.99),
				floatDef("beta", "Trend (β)", 0.1, 0.01, 0.99),
				floatDef("gamma", "Seasonal (γ)", 0.1, 0.01, 0.99),
				{
					Name:    "seasonalType",
					Label:   "Seasonality",
					Kind:    KindChoice,
					Default: SeasonalityAdditive,
					Options: []string{SeasonalityAdditive, SeasonalityMultiplicative},
				},
			},
			Seasonal: true,
			Grid: map[string][]any{
				"alpha":        smoothingGrid(0.1, 0.3, 0.5),
				"beta":         smoothingGrid(0.05, 0.1, 0.2),
				"gamma":        smoothingGrid(0.05, 0.1, 0.3),
				"seasonalType": {SeasonalityAdditive, SeasonalityMultiplicative},
			},
			MinObservations: seasonsMin(2),
			build:           newHoltWinters,
		},
		{
			ID:              ModelSeasonalNaive,
			DisplayName:     "Seasonal Naive",
			Seasonal:        true,
			MinObservations: seasonsMin(1),
			build:           newSeasonalNaive,
		},
		{
			ID:              ModelSeasonalMovingAverage,
			DisplayName:     "Seasonal Moving Average",
			Parameters:      []ParameterDef{intDef("window", "Window", 3, 2, 24)},
			Seasonal:        true,
			Grid:            map[string][]any{"window": intGrid(2, 3, 4, 6)},
			MinObservations: seasonsMin(2),
			build:           newSeasonalMovingAverage,
		},
		{
			ID:              ModelLinearTrend,
			DisplayName:     "Linear Trend",
			MinObservations: fixedMin(minSeriesLength),
			build:           newLinearTrend,
		},
		{
			ID:          ModelARIMA,
			DisplayName: "ARIMA",
			Parameters: []ParameterDef{
				intDef("p", "AR order (p)", 1, 0, 5),
				intDef("d", "Differencing (d)", 1, 0, 2),
				intDef("q", "MA order (q)", 1, 0, 5),
				{Name: "auto", Label: "Auto order", Kind: KindBool, Default: false},
			},
			Grid: map[string][]any{
				"p": intGrid(0, 1, 2),
				"d": intGrid(0, 1),
				"q": intGrid(0, 1),
			},
			MinObservations: fixedMin(minARIMAObservations),
			build:           newARIMAFamily(estimator),
		},
		{
			ID:          ModelSARIMA,
			DisplayName: "SARIMA",
			Parameters: []ParameterDef{
				intDef("p", "AR order (p)", 1, 0, 3),
				intDef("d", "Differencing (d)", 1, 0, 2),
				intDef("q", "MA order (q)", 1, 0, 3),
				intDef("P", "Seasonal AR (P)", 1, 0, 2),
				intDef("D", "Seasonal differencing (D)", 1, 0, 1),
				intDef("Q", "Seasonal MA (Q)", 1, 0, 2),
				{Name: "auto", Label: "Auto order", Kind: KindBool, Default: false},
			},
			Seasonal: true,
			Grid: map[string][]any{
				"p": intGrid(0, 1),
				"q": intGrid(0, 1),
				"P": intGrid(0, 1),
				"Q": intGrid(0, 1),
			},
			MinObservations: seasonsMin(2),
			build:           newARIMAFamily(estimator),
		},
	}
}

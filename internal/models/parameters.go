package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Parameters is a model's parameter set keyed by parameter name. Numeric values
// may arrive as float64 (JSON/YAML) or int; getters normalise both.
type Parameters map[string]any

// Clone returns a shallow copy safe to mutate.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return Parameters{}
	}
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Float returns the named numeric parameter or def.
func (p Parameters) Float(name string, def float64) float64 {
	v, ok := p[name]
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Int returns the named numeric parameter rounded to an int, or def.
func (p Parameters) Int(name string, def int) int {
	v, ok := p[name]
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return int(math.Round(f))
	}
	return def
}

// String returns the named string parameter or def.
func (p Parameters) String(name, def string) string {
	if v, ok := p[name].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns the named boolean parameter or def.
func (p Parameters) Bool(name string, def bool) bool {
	switch v := p[name].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	if f, ok := toFloat(p[name]); ok {
		return f != 0
	}
	return def
}

// Key renders a stable textual form, used for logging and deterministic ordering.
func (p Parameters) Key() string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, ",")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

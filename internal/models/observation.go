package models

import (
	"sort"
	"time"
)

// Observation is a single normalised demand record for a SKU.
type Observation struct {
	SKU   string    `json:"sku" yaml:"sku"`
	Date  time.Time `json:"date" yaml:"date"`
	Value float64   `json:"value" yaml:"value"`
}

// GroupBySKU partitions observations per SKU, each slice ordered by date.
// The input slice is not modified.
func GroupBySKU(observations []Observation) map[string][]Observation {
	grouped := make(map[string][]Observation)
	for _, obs := range observations {
		grouped[obs.SKU] = append(grouped[obs.SKU], obs)
	}
	for sku, series := range grouped {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Date.Before(series[j].Date)
		})
		grouped[sku] = series
	}
	return grouped
}

// SeriesFor returns the date-ordered observations of one SKU.
func SeriesFor(observations []Observation, sku string) []Observation {
	series := make([]Observation, 0)
	for _, obs := range observations {
		if obs.SKU == sku {
			series = append(series, obs)
		}
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})
	return series
}

// Values extracts the numeric series from ordered observations.
func Values(series []Observation) []float64 {
	values := make([]float64, len(series))
	for i, obs := range series {
		values[i] = obs.Value
	}
	return values
}

// SortedSKUs returns the distinct SKUs of the grouping in lexical order.
func SortedSKUs(grouped map[string][]Observation) []string {
	skus := make([]string, 0, len(grouped))
	for sku := range grouped {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

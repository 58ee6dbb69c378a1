package advisory

import "math"

const defaultSpikeThreshold = 2.5

// SeriesProfile summarises a demand history for the advisory prompt.
type SeriesProfile struct {
	Mean                   float64 `json:"mean"`
	StdDev                 float64 `json:"stdDev"`
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
	ZeroPeriods            int     `json:"zeroPeriods"`
	Spikes                 []Spike `json:"spikes,omitempty"`
}

// Spike is a period whose z-score reaches the detection threshold.
type Spike struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
	Score float64 `json:"score"`
}

// Profile computes summary statistics and z-score spikes over values. A
// non-positive threshold uses 2.5.
func Profile(values []float64, threshold float64) SeriesProfile {
	if len(values) == 0 {
		return SeriesProfile{}
	}
	if threshold <= 0 {
		threshold = defaultSpikeThreshold
	}

	var profile SeriesProfile
	for _, v := range values {
		profile.Mean += v
		if v == 0 {
			profile.ZeroPeriods++
		}
	}
	profile.Mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-profile.Mean, 2)
	}
	profile.StdDev = math.Sqrt(variance / float64(len(values)))
	if profile.Mean != 0 {
		profile.CoefficientOfVariation = profile.StdDev / profile.Mean
	}

	stdDev := profile.StdDev
	if stdDev == 0 {
		stdDev = 0.01
	}
	for i, v := range values {
		if score := (v - profile.Mean) / stdDev; math.Abs(score) >= threshold {
			profile.Spikes = append(profile.Spikes, Spike{Index: i, Value: v, Score: score})
		}
	}
	return profile
}

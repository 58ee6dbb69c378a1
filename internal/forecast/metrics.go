package forecast

import "math"

// MAPE is the mean absolute percentage error over terms with a nonzero actual.
func MAPE(actual, predicted []float64) float64 {
	n := pairLen(actual, predicted)
	sum := 0.0
	count := 0
	for i := 0; i < n; i++ {
		if actual[i] == 0 {
			continue
		}
		sum += math.Abs(actual[i]-predicted[i]) / math.Abs(actual[i])
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * 100
}

// RMSE is the root mean squared error.
func RMSE(actual, predicted []float64) float64 {
	n := pairLen(actual, predicted)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

// MAE is the mean absolute error.
func MAE(actual, predicted []float64) float64 {
	n := pairLen(actual, predicted)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(n)
}

// Accuracy maps a MAPE onto a 0-100 score.
func Accuracy(mape float64) float64 {
	return math.Max(0, 100-mape)
}

// Score computes all shared metrics for a prediction window.
func Score(actual, predicted []float64) ValidationResult {
	mape := MAPE(actual, predicted)
	return ValidationResult{
		MAPE:     mape,
		RMSE:     RMSE(actual, predicted),
		MAE:      MAE(actual, predicted),
		Accuracy: Accuracy(mape),
	}
}

func pairLen(a, b []float64) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}

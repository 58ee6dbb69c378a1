package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotTrained is returned when a model is queried before Train succeeded.
var ErrNotTrained = errors.New("model has not been trained")

// ErrAdvisoryUnavailable signals the advisory optimiser cannot serve requests.
var ErrAdvisoryUnavailable = errors.New("advisory optimizer unavailable")

// UnknownModelError reports a model id that is not registered.
type UnknownModelError struct {
	ModelID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.ModelID)
}

// InsufficientDataError reports a series shorter than a model requires.
type InsufficientDataError struct {
	ModelID  string
	Required int
	Actual   int
}

func (e *InsufficientDataError) Error() string {
	if e.ModelID == "" {
		return fmt.Sprintf("need at least %d observations, got %d", e.Required, e.Actual)
	}
	return fmt.Sprintf("%s: need at least %d observations, got %d", e.ModelID, e.Required, e.Actual)
}

// InvalidSeriesError reports a non-finite value in a series.
type InvalidSeriesError struct {
	Index int
	Value float64
}

func (e *InvalidSeriesError) Error() string {
	return fmt.Sprintf("invalid series value %v at index %d", e.Value, e.Index)
}

// RateLimitError signals the advisory optimiser throttled the request.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("advisory rate limited, retry after %s", e.RetryAfter)
	}
	return "advisory rate limited"
}

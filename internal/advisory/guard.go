package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// GuardConfig tunes the breaker and the client-side rate limit.
type GuardConfig struct {
	RequestsPerSecond float64
	Burst             int
	FailureThreshold  uint32
	OpenTimeout       time.Duration
}

// Guarded wraps an Advisor with a circuit breaker and a token bucket so a
// failing or throttled provider is skipped quickly instead of stalling jobs.
type Guarded struct {
	next    Advisor
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuarded wraps next.
func NewGuarded(next Advisor, cfg GuardConfig) *Guarded {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:    "advisory",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var rl *models.RateLimitError
			return err == nil || errors.As(err, &rl) || errors.Is(err, context.Canceled)
		},
	}
	return &Guarded{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// Recommend implements Advisor.
func (g *Guarded) Recommend(ctx context.Context, req Request) (Recommendation, error) {
	reservation := g.limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return Recommendation{}, &models.RateLimitError{RetryAfter: delay}
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Recommend(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Recommendation{}, fmt.Errorf("%v: %w", err, models.ErrAdvisoryUnavailable)
	}
	if err != nil {
		return Recommendation{}, err
	}
	return out.(Recommendation), nil
}

// State reports the breaker state for diagnostics.
func (g *Guarded) State() string {
	return g.breaker.State().String()
}

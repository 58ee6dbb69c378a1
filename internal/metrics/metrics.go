package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed jobs and forecasts.
	OutcomeSuccess = "success"
	// OutcomeError labels failed jobs and forecasts.
	OutcomeError = "error"
)

var (
	optimizationJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_forecast",
			Name:      "optimization_jobs_total",
			Help:      "Total number of optimisation jobs completed, partitioned by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	optimizationJobSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_forecast",
			Name:      "optimization_job_seconds",
			Help:      "Optimisation job latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method"},
	)

	forecastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_forecast",
			Name:      "forecasts_total",
			Help:      "Total number of SKU forecasts generated, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	forecastSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_forecast",
			Name:      "forecast_seconds",
			Help:      "SKU forecast latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	cacheVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_forecast",
			Name:      "cache_version",
			Help:      "Current optimisation cache version.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_forecast",
			Name:      "queue_depth",
			Help:      "Number of SKUs waiting for optimisation.",
		},
	)

	skuHashComputations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_forecast",
			Name:      "sku_hash_computations_total",
			Help:      "Per-SKU data hashes computed while rebuilding the cache manifest.",
		},
	)
)

// Register attaches mirador-forecast collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		optimizationJobsTotal,
		optimizationJobSeconds,
		forecastsTotal,
		forecastSeconds,
		cacheVersion,
		queueDepth,
		skuHashComputations,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveJob records an optimisation job duration and outcome.
func ObserveJob(method string, duration time.Duration, outcome string) {
	optimizationJobsTotal.WithLabelValues(method, normaliseOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	optimizationJobSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveForecast records a forecast duration and outcome label.
func ObserveForecast(duration time.Duration, outcome string) {
	forecastsTotal.WithLabelValues(normaliseOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	forecastSeconds.Observe(duration.Seconds())
}

// SetCacheVersion publishes the cache version.
func SetCacheVersion(v uint64) { cacheVersion.Set(float64(v)) }

// SetQueueDepth publishes the queue size.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// AddHashComputations increments the SKU hash counter by delta.
func AddHashComputations(delta uint64) {
	if delta > 0 {
		skuHashComputations.Add(float64(delta))
	}
}

func normaliseOutcome(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return OutcomeError
}

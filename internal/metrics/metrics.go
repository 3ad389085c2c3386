// Package metrics exposes Prometheus collectors for digit sum computations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eugenenazirov/digitsum/internal/digitsum"
)

const namespace = "digitsum"

// Outcome label values for the computations counter.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid_input"
)

// Recorder owns a private registry so tests and multiple instances never
// collide on the global one.
type Recorder struct {
	registry     *prometheus.Registry
	computations *prometheus.CounterVec
	duration     prometheus.Histogram
	digits       prometheus.Histogram
	lastSum      prometheus.Gauge
}

// New creates a Recorder with the computation collectors plus the Go runtime
// and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_total",
			Help:      "Total number of digit sum computations by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "computation_duration_seconds",
			Help:      "Duration of digit sum computations.",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 1e-2},
		}),
		digits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "input_digits",
			Help:      "Number of digits extracted from successful inputs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		lastSum: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sum",
			Help:      "Digit sum of the most recent successful computation.",
		}),
	}

	r.registry.MustRegister(
		r.computations,
		r.duration,
		r.digits,
		r.lastSum,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveSuccess records a successful computation.
func (r *Recorder) ObserveSuccess(result digitsum.Result, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.computations.WithLabelValues(OutcomeSuccess).Inc()
	r.duration.Observe(elapsed.Seconds())
	r.digits.Observe(float64(len(result.Digits)))
	r.lastSum.Set(float64(result.Sum))
}

// ObserveFailure records a computation rejected as invalid input.
func (r *Recorder) ObserveFailure(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.computations.WithLabelValues(OutcomeInvalid).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

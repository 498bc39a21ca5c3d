package container

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a container.
type Metrics struct {
	Resolutions *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Scopes      prometheus.Counter
}

// NewMetrics creates the container collectors under namespace and registers
// them with registerer. A nil registerer leaves them unregistered.
//
//	metrics, err := container.NewMetrics("atlas", prometheus.DefaultRegisterer)
//	c := container.New(container.WithMetrics(metrics))
func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "container",
				Name:      "resolutions_total",
				Help:      "Total number of container resolutions",
			},
			[]string{"lifecycle", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "container",
				Name:      "resolution_duration_seconds",
				Help:      "Container resolution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"lifecycle"},
		),
		Scopes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "container",
				Name:      "scopes_created_total",
				Help:      "Total number of container scopes created",
			},
		),
	}

	if registerer != nil {
		for _, collector := range []prometheus.Collector{m.Resolutions, m.Duration, m.Scopes} {
			if err := registerer.Register(collector); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeResolution(lifecycle Lifecycle, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Resolutions.WithLabelValues(lifecycle.String(), outcome).Inc()
	m.Duration.WithLabelValues(lifecycle.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) observeScope() {
	if m == nil {
		return
	}
	m.Scopes.Inc()
}

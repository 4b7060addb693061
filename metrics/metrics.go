// Package metrics instruments install runs with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vmedia"

// Result label values.
const (
	Success = "success"
	Failure = "failure"
	Skipped = "skipped"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	runs  *prometheus.CounterVec
	steps *prometheus.HistogramVec
	polls prometheus.Counter
}

// New registers the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "install",
			Name:      "runs_total",
			Help:      "Install runs by final result.",
		}, []string{"result"}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "install",
			Name:      "step_duration_seconds",
			Help:      "Duration of install workflow steps.",
			// power off waits up to a minute, readiness up to half an hour.
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900, 1800},
		}, []string{"step", "result"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "power_state_polls_total",
			Help:      "Power state reads made while waiting for a transition.",
		}),
	}
	m.Registry.MustRegister(m.runs, m.steps, m.polls)

	return m
}

// RunFinished counts one run.
func (m *Metrics) RunFinished(succeeded bool) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result(succeeded)).Inc()
}

// ObserveStep records how long step took.
func (m *Metrics) ObserveStep(step, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(step, result).Observe(d.Seconds())
}

// PowerPoll counts one power state read.
func (m *Metrics) PowerPoll() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

// WriteTextfile writes all metrics in the text exposition format for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

func result(ok bool) string {
	if ok {
		return Success
	}
	return Failure
}

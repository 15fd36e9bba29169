package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Metrics holds the collectors of a matcher and its pool.
// Every instance registers into its own registerer, so several matchers may live in one process.
type Metrics struct {
	TasksSubmitted prometheus.Counter
	// TasksFinished counts finished tasks by status (success/failed).
	TasksFinished *prometheus.CounterVec
	ActiveWorkers prometheus.Gauge
	TaskLatency   prometheus.Histogram
	MatchesFound  prometheus.Counter
	Passes        prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates collectors registered in a fresh registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(namespace, reg, reg)
}

// NewWithRegistry creates collectors registered in reg. The gatherer is used by WriteToFile.
func NewWithRegistry(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the worker pool.",
		}),
		TasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_finished_total",
			Help:      "Total number of finished tasks by status.",
		}, []string{"status"}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active_workers",
			Help:      "Number of workers currently executing a task.",
		}),
		TaskLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "task_latency_seconds",
			Help:      "Histogram of task execution latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		MatchesFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "matches_found_total",
			Help:      "Total number of matches reported to listeners.",
		}),
		Passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "passes_total",
			Help:      "Total number of started matching passes.",
		}),
		gatherer: gatherer,
	}
}

// WriteToFile dumps the gathered metrics in the text exposition format.
func (m *Metrics) WriteToFile(path string) error {
	if m.gatherer == nil {
		return fmt.Errorf("metrics gatherer is not configured")
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

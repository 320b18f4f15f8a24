package restore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Restore result labels.
const (
	resultSucceeded = "succeeded"
	resultNoOp      = "noop"
	resultFailed    = "failed"
	resultCanceled  = "canceled"
	resultError     = "error"
)

// Metrics instruments restore and search attempts. A nil *Metrics is a valid
// no-op receiver so instrumentation stays optional.
type Metrics struct {
	restores *prometheus.CounterVec
	searches *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the orchestrator metrics on reg, defaulting to the
// global registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		restores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restorer",
			Name:      "restores_total",
			Help:      "Restore attempts by result.",
		}, []string{"result"}),
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restorer",
			Name:      "searches_total",
			Help:      "Search attempts by result.",
		}, []string{"result"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "restorer",
			Name:      "restore_duration_seconds",
			Help:      "Wall time of completed restore attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) restoreDone(result string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.restores.WithLabelValues(result).Inc()

	if result == resultSucceeded || result == resultNoOp {
		m.duration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) searchDone(result string) {
	if m == nil {
		return
	}

	m.searches.WithLabelValues(result).Inc()
}

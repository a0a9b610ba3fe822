package locator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics shared by all locators
type Metrics struct {
	// Gauges
	ActiveSearches *prometheus.GaugeVec

	// Counters
	SearchesTotal *prometheus.CounterVec
	ReadsTotal    *prometheus.CounterVec

	// Histograms
	SearchSteps    *prometheus.HistogramVec
	SearchDuration *prometheus.HistogramVec
}

// NewMetrics creates the locator metrics and registers them with reg.
// A nil registerer uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "chainprobe"
	}
	const subsystem = "locator"
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSearches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_searches",
			Help:      "Number of searches currently running",
		}, []string{"kind"}),
		SearchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "searches_total",
			Help:      "Total number of finished searches by outcome",
		}, []string{"kind", "outcome"}),
		ReadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "probe_reads_total",
			Help:      "Total number of probe reads issued by searches",
		}, []string{"kind"}),
		SearchSteps: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "search_steps",
			Help:      "Number of window narrowing steps per search",
			Buckets:   prometheus.LinearBuckets(0, 4, 10),
		}, []string{"kind"}),
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "search_duration_seconds",
			Help:      "Wall time of a search",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
	}
}

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StatsSource is anything that can report cache statistics
type StatsSource interface {
	Stats() Stats
}

// RegisterMetrics exports the statistics of src as Prometheus metrics labelled with name.
// A nil registerer uses the default Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer, namespace, name string, src StatsSource) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"cache": name}

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hits_total",
		Help:        "Total number of cache hits",
		ConstLabels: labels,
	}, func() float64 { return float64(src.Stats().Hits) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "misses_total",
		Help:        "Total number of cache misses",
		ConstLabels: labels,
	}, func() float64 { return float64(src.Stats().Misses) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "evictions_total",
		Help:        "Total number of LRU evictions",
		ConstLabels: labels,
	}, func() float64 { return float64(src.Stats().Evictions) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "entries",
		Help:        "Current number of cached entries",
		ConstLabels: labels,
	}, func() float64 { return float64(src.Stats().Size) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hit_ratio",
		Help:        "Share of lookups served from the cache",
		ConstLabels: labels,
	}, func() float64 { return src.Stats().HitRate() })
}

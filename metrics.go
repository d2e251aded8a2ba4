package tagstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics holds the Prometheus collectors of one store.
type storeMetrics struct {
	writes       prometheus.Counter
	deletes      prometheus.Counter
	queries      prometheus.Counter
	transactions *prometheus.CounterVec
	queryLatency prometheus.Histogram
	knownEntries prometheus.Gauge
	tags         prometheus.Gauge
	metrics      prometheus.Gauge
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	factory := promauto.With(reg)
	return &storeMetrics{
		writes: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagstore_entry_writes_total",
			Help: "Total number of entries written",
		}),
		deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagstore_entry_deletes_total",
			Help: "Total number of entries deleted",
		}),
		queries: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagstore_queries_total",
			Help: "Total number of key queries evaluated",
		}),
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagstore_transactions_total",
			Help: "Total number of transactions by outcome",
		}, []string{"outcome"}),
		queryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagstore_query_duration_seconds",
			Help:    "Duration of key queries in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		knownEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tagstore_known_entries",
			Help: "Number of entries known to the store",
		}),
		tags: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tagstore_tags",
			Help: "Number of tag keys known to the store",
		}),
		metrics: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tagstore_metrics",
			Help: "Number of metric keys known to the store",
		}),
	}
}

package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's prometheus-facing counters. The stats
// snapshot reads the engine's plain counters instead; these exist for
// scraping.
type Metrics struct {
	puts         prometheus.Counter
	deletes      prometheus.Counter
	compactions  prometheus.Counter
	syncDuration prometheus.Histogram
}

// NewMetrics builds and registers the engine metrics on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "puts_total",
			Help: "Number of put records appended to the log.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deletes_total",
			Help: "Number of tombstone records appended to the log.",
		}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compactions_total",
			Help: "Number of completed log compactions.",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "sync_duration_seconds",
			Help: "Duration of log fsync calls.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.puts, m.deletes, m.compactions, m.syncDuration)
	}

	return m
}

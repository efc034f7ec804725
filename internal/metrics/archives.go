package metrics

import "github.com/prometheus/client_golang/prometheus"

var ActiveArchives = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "dex_archive_active_archives",
	Help: "Number of blob archives in progress",
})

var ArchiveTotals = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dex_archive_archives_total",
	Help: "Number of blob archive invocations partitioned by archive container and outcome",
}, []string{"container", "outcome"})

var CopyPolls = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "dex_archive_copy_polls",
	Help:    "Number of copy status reads made before a copy left the pending state or timed out",
	Buckets: []float64{1, 2, 3, 5, 10, 20, 30},
})

var DefaultMetrics = []prometheus.Collector{
	ActiveArchives,
	ArchiveTotals,
	CopyPolls,
	EventsCounter,
	CurrentMessages,
	HttpReqs,
	OpenConnections,
}

func RegisterMetrics(metrics ...prometheus.Collector) error {
	if metrics == nil {
		metrics = DefaultMetrics
	}
	for _, m := range metrics {
		if err := prometheus.Register(m); err != nil {
			return err
		}
	}
	return nil
}

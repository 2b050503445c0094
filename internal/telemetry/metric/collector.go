package metric

import "github.com/prometheus/client_golang/prometheus"

// SessionStats is a point-in-time view of the session index.
type SessionStats struct {
	Blocked  int
	Pending  int
	Live     int
	Capacity int
	Occupied int
}

// SessionCollector samples session index occupancy at scrape time.
type SessionCollector struct {
	stats func() SessionStats

	entries  *prometheus.Desc
	capacity *prometheus.Desc
	occupied *prometheus.Desc
}

// NewSessionCollector creates a collector calling stats on every scrape.
// stats must be safe to call from the scraping goroutine.
func NewSessionCollector(stats func() SessionStats) *SessionCollector {
	return &SessionCollector{
		stats: stats,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sessions", "entries"),
			"Session index entries by state.",
			[]string{"state"}, nil,
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sessions", "capacity"),
			"Session index slot capacity.",
			nil, nil,
		),
		occupied: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sessions", "occupied"),
			"Session index slots holding an entry or a tombstone.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.capacity
	ch <- c.occupied
}

// Collect implements prometheus.Collector.
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Blocked), "blocked")
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Pending), "pending")
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Live), "live")
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.occupied, prometheus.GaugeValue, float64(s.Occupied))
}

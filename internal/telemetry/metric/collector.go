package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineStats is the storage state read at scrape time.
type EngineStats struct {
	Slots    int
	Live     int
	Capacity int
	Indexed  int
	Buckets  int
	Reserved bool
}

// Collector reports storage gauges by calling a stats function on each scrape.
type Collector struct {
	stats func() EngineStats

	slots    *prometheus.Desc
	live     *prometheus.Desc
	capacity *prometheus.Desc
	indexed  *prometheus.Desc
	buckets  *prometheus.Desc
	reserved *prometheus.Desc
}

// NewCollector creates a collector backed by stats.
func NewCollector(stats func() EngineStats) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		stats:    stats,
		slots:    desc("record_slots", "Allocated record slots, tombstones included."),
		live:     desc("records_live", "Records not yet evicted."),
		capacity: desc("records_capacity", "Configured live-record ceiling."),
		indexed:  desc("index_entries", "Occupied capability index buckets."),
		buckets:  desc("index_buckets", "Capability index bucket count."),
		reserved: desc("reservation_active", "1 while an upload reservation is held."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.slots
	ch <- c.live
	ch <- c.capacity
	ch <- c.indexed
	ch <- c.buckets
	ch <- c.reserved
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	reserved := 0.0
	if s.Reserved {
		reserved = 1
	}
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(s.Slots))
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(s.Live))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.indexed, prometheus.GaugeValue, float64(s.Indexed))
	ch <- prometheus.MustNewConstMetric(c.buckets, prometheus.GaugeValue, float64(s.Buckets))
	ch <- prometheus.MustNewConstMetric(c.reserved, prometheus.GaugeValue, reserved)
}

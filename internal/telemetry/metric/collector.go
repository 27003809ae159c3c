package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CountFunc returns the number of members per state ("pending", "verified").
type CountFunc func(ctx context.Context) (map[string]int, error)

// Collector reports member counts from the store at scrape time.
type Collector struct {
	count   CountFunc
	timeout time.Duration
	members *prometheus.Desc
	up      *prometheus.Desc
}

// NewCollector creates a collector backed by count.
func NewCollector(count CountFunc) *Collector {
	return &Collector{
		count:   count,
		timeout: 5 * time.Second,
		members: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "members"),
			"Members in the store, by state.",
			[]string{"state"}, nil,
		),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "store_up"),
			"Whether the last member count succeeded.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.members
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.count(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.members, prometheus.GaugeValue, float64(n), state)
	}
}

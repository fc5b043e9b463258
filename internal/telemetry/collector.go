package telemetry

import (
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes accountant snapshots as Prometheus metrics. Values are read on scrape.
type Collector struct {
	acc *accountant.Accountant

	bytes        *prometheus.Desc
	entries      *prometheus.Desc
	locked       *prometheus.Desc
	loading      *prometheus.Desc
	quotaBytes   *prometheus.Desc
	quotaEntries *prometheus.Desc
	aggressive   *prometheus.Desc

	hits         *prometheus.Desc
	misses       *prometheus.Desc
	evictedItems *prometheus.Desc
	evictedBytes *prometheus.Desc
	aborted      *prometheus.Desc
	underflows   *prometheus.Desc

	shrinkCalls *prometheus.Desc
	partial     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(namespace string, acc *accountant.Accountant) *Collector {
	tierDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "tier", name), help, []string{"tier"}, nil)
	}
	return &Collector{
		acc: acc,

		bytes:        tierDesc("bytes", "Accounted bytes held by the tier."),
		entries:      tierDesc("entries", "Entries held by the tier."),
		locked:       tierDesc("locked_entries", "Entries pinned by at least one lock."),
		loading:      tierDesc("loading_entries", "Entries still being filled by a producer."),
		quotaBytes:   tierDesc("quota_bytes", "Byte quota, 0 when unlimited."),
		quotaEntries: tierDesc("quota_entries", "Entry quota, 0 when unlimited."),
		aggressive:   tierDesc("aggressive", "1 when the tier reclaims down to its low-water mark."),

		hits:         tierDesc("hits_total", "Lookups that found an entry."),
		misses:       tierDesc("misses_total", "Lookups that found nothing."),
		evictedItems: tierDesc("evicted_entries_total", "Entries removed by eviction or expiry."),
		evictedBytes: tierDesc("evicted_bytes_total", "Bytes released by eviction or expiry."),
		aborted:      tierDesc("aborted_total", "Loading entries destroyed by aborts."),
		underflows:   tierDesc("unlock_underflows_total", "Unlock calls on entries without locks."),

		shrinkCalls: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "shrink_calls_total"),
			"Shrink requests served by the accountant.", nil, nil),
		partial: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "partial_reclamations_total"),
			"Tier passes that stopped on locked or loading entries.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.bytes, c.entries, c.locked, c.loading, c.quotaBytes, c.quotaEntries, c.aggressive,
		c.hits, c.misses, c.evictedItems, c.evictedBytes, c.aborted, c.underflows,
		c.shrinkCalls, c.partial,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.acc.Snapshots() {
		gauge := func(d *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), s.Name)
		}
		gauge(c.bytes, s.Bytes)
		gauge(c.entries, s.Files)
		gauge(c.locked, s.Locked)
		gauge(c.loading, s.Loading)
		gauge(c.quotaBytes, s.QuotaBytes)
		gauge(c.quotaEntries, s.QuotaEntries)
		var aggressive int64
		if s.Aggressive {
			aggressive = 1
		}
		gauge(c.aggressive, aggressive)

		t, ok := c.acc.Tier(s.Name)
		if !ok {
			continue
		}
		m := t.Metrics()
		counter := func(d *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), s.Name)
		}
		counter(c.hits, m.Hits)
		counter(c.misses, m.Misses)
		counter(c.evictedItems, m.EvictedItems)
		counter(c.evictedBytes, m.EvictedBytes)
		counter(c.aborted, m.Aborted)
		counter(c.underflows, m.Underflows)
	}

	am := c.acc.Metrics()
	ch <- prometheus.MustNewConstMetric(c.shrinkCalls, prometheus.CounterValue, float64(am.ShrinkCalls))
	ch <- prometheus.MustNewConstMetric(c.partial, prometheus.CounterValue, float64(am.Partial))
}

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
)

const (
	labelArena = "arena"
	labelShard = "shard"
)

// ArenaCollector is a prometheus.Collector reporting ArenaMetrics for every
// shard of a sharded arena. Collect reads the shards without locking, so
// scrapes must not overlap with mutations of the arena.
type ArenaCollector struct {
	arenas *multimap.ShardedArena
	descs  []*prometheus.Desc
}

// NewArenaCollector creates a collector labelling its series with name.
func NewArenaCollector(name string, arenas *multimap.ShardedArena) *ArenaCollector {
	descs := make([]*prometheus.Desc, len(ArenaMetrics))
	for idx, m := range ArenaMetrics {
		descs[idx] = prometheus.NewDesc(m.Name(), m.Description(), []string{labelShard}, prometheus.Labels{labelArena: name})
	}

	return &ArenaCollector{arenas: arenas, descs: descs}
}

// Describe implements prometheus.Collector.
func (c *ArenaCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
}

// Collect implements prometheus.Collector.
func (c *ArenaCollector) Collect(ch chan<- prometheus.Metric) {
	for shardIdx, shard := range c.arenas.Shards() {
		stats := shard.Stats()
		shardLabel := strconv.Itoa(shardIdx)

		for idx, m := range ArenaMetrics {
			ch <- prometheus.MustNewConstMetric(c.descs[idx], prometheus.GaugeValue, m.Compute(stats), shardLabel)
		}
	}
}

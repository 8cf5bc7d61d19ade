// Package metrics exposes arena occupancy and workload instruments in the
// Prometheus text format.
//
// Each arena metric is a self-contained computation that:
//   - Declares its name and help text
//   - Computes a value from the statistics of one arena shard
//
// OTel instruments created from Exporter.Meter end up in the same registry
// through the OTel Prometheus bridge.
package metrics

import (
	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
)

// Metric is a named computation over some input.
type Metric[In, Out any] interface {
	// Name returns the machine-readable identifier (snake_case, unique).
	Name() string

	// Description returns the help text.
	Description() string

	// Compute calculates the metric value from input data.
	Compute(input In) Out
}

// MetricMeta holds the common metadata for a metric.
// Embed this in metric implementations to satisfy metadata methods.
type MetricMeta struct {
	MetricName        string
	MetricDescription string
}

// Name returns the machine-readable identifier.
func (m MetricMeta) Name() string { return m.MetricName }

// Description returns the help text.
func (m MetricMeta) Description() string { return m.MetricDescription }

// ArenaMetric computes a gauge value from the statistics of one shard.
type ArenaMetric struct {
	MetricMeta

	compute func(stats multimap.Stats) float64
}

// Compute implements Metric.
func (m ArenaMetric) Compute(stats multimap.Stats) float64 {
	return m.compute(stats)
}

var _ Metric[multimap.Stats, float64] = ArenaMetric{}

// ArenaMetrics lists the gauges reported for every shard.
var ArenaMetrics = []ArenaMetric{
	{
		MetricMeta: MetricMeta{"embedtree_arena_entries", "Allocated entries, free ones included."},
		compute:    func(stats multimap.Stats) float64 { return float64(stats.Entries) },
	},
	{
		MetricMeta: MetricMeta{"embedtree_arena_used_entries", "Entries holding a value or a sentinel."},
		compute:    func(stats multimap.Stats) float64 { return float64(stats.Used) },
	},
	{
		MetricMeta: MetricMeta{"embedtree_arena_free_entries", "Entries waiting for reuse."},
		compute:    func(stats multimap.Stats) float64 { return float64(stats.Free) },
	},
	{
		MetricMeta: MetricMeta{"embedtree_arena_fragmentation_ratio", "Share of allocated entries that are free."},
		compute:    fragmentation,
	},
	{
		MetricMeta: MetricMeta{"embedtree_arena_hibernated_bytes", "Size of the compressed columns."},
		compute:    func(stats multimap.Stats) float64 { return float64(stats.HibernatedBytes) },
	},
	{
		MetricMeta: MetricMeta{"embedtree_arena_hibernated", "1 when the shard is hibernated."},
		compute: func(stats multimap.Stats) float64 {
			if stats.Hibernated {
				return 1
			}

			return 0
		},
	},
}

func fragmentation(stats multimap.Stats) float64 {
	if stats.Entries == 0 {
		return 0
	}

	return float64(stats.Free) / float64(stats.Entries)
}

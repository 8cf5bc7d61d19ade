package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricInsertsTotal     = "embedtree.inserts.total"
	metricErasesTotal      = "embedtree.erases.total"
	metricPrunesTotal      = "embedtree.prunes.total"
	metricRelocationsTotal = "embedtree.relocations.total"
	metricLiveValues       = "embedtree.values.live"
	metricPhaseDuration    = "embedtree.phase.duration.seconds"

	attrPhase = "phase"
)

// durationBucketBoundaries covers sub-millisecond map operations up to
// multi-second snapshot writes.
var durationBucketBoundaries = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// TreeMetrics holds OTel instruments for multimap workloads.
type TreeMetrics struct {
	inserts       metric.Int64Counter
	erases        metric.Int64Counter
	prunes        metric.Int64Counter
	relocations   metric.Int64Counter
	liveValues    metric.Int64UpDownCounter
	phaseDuration metric.Float64Histogram
}

// WorkloadStats summarizes the operations one shard performed.
type WorkloadStats struct {
	Shard       int
	Inserts     int64
	Erases      int64
	Prunes      int64
	Relocations int64
}

// NewTreeMetrics creates the workload instruments from the given meter.
func NewTreeMetrics(mt metric.Meter) (*TreeMetrics, error) {
	b := newMetricBuilder(mt)

	tm := &TreeMetrics{
		inserts:       b.counter(metricInsertsTotal, "Values inserted", "{value}"),
		erases:        b.counter(metricErasesTotal, "Values erased one by one", "{value}"),
		prunes:        b.counter(metricPrunesTotal, "Values released by clearing a map", "{value}"),
		relocations:   b.counter(metricRelocationsTotal, "Entries moved by compaction", "{entry}"),
		liveValues:    b.upDownCounter(metricLiveValues, "Values currently stored", "{value}"),
		phaseDuration: b.histogram(metricPhaseDuration, "Duration of a workload phase", "s", durationBucketBoundaries...),
	}

	if b.err != nil {
		return nil, b.err
	}

	return tm, nil
}

// RecordWorkload adds the counts of one shard. Safe to call on a nil receiver.
func (tm *TreeMetrics) RecordWorkload(ctx context.Context, stats WorkloadStats) {
	if tm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Int(attrShard, stats.Shard))

	tm.inserts.Add(ctx, stats.Inserts, attrs)
	tm.erases.Add(ctx, stats.Erases, attrs)
	tm.prunes.Add(ctx, stats.Prunes, attrs)
	tm.relocations.Add(ctx, stats.Relocations, attrs)
	tm.liveValues.Add(ctx, stats.Inserts-stats.Erases-stats.Prunes, attrs)
}

// RecordPhase records how long a named phase took. Safe to call on a nil receiver.
func (tm *TreeMetrics) RecordPhase(ctx context.Context, phase string, elapsed time.Duration) {
	if tm == nil {
		return
	}

	tm.phaseDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String(attrPhase, phase)))
}

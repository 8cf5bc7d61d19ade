// Package workload drives a randomized insert and erase workload over maps
// spread across the shards of a multimap.ShardedArena, then exercises
// clearing, compaction, hibernation and snapshots.
package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
	"github.com/Sumatoshi-tech/embedtree/pkg/observability"
)

// Phase names.
const (
	PhasePopulate  = "populate"
	PhaseClear     = "clear"
	PhaseCompact   = "compact"
	PhaseVerify    = "verify"
	PhaseHibernate = "hibernate"
	PhaseSnapshot  = "snapshot"
	PhaseBoot      = "boot"
)

// ErrSnapshotMismatch is returned when a restored map differs from the one saved.
var ErrSnapshotMismatch = errors.New("restored map does not match the saved one")

// Config describes the workload.
type Config struct {
	// EraseRatio is the probability of an operation erasing a random live value.
	EraseRatio float64
	// Seed makes runs reproducible.
	Seed uint64
	// Keys is the total number of operations, split across maps.
	Keys int
	// KeySpace bounds the keys drawn; small spaces produce many duplicates.
	KeySpace uint32
	// Maps is the number of maps.
	Maps int
	// VerifyEvery checks a map every that many operations. Zero checks only
	// in the verify phases.
	VerifyEvery int
}

// Phase is the measured duration of one phase.
type Phase struct {
	Name    string
	Elapsed time.Duration
}

// Shard holds the maps living in one arena shard and the operations they saw.
type Shard struct {
	Arena *multimap.Arena
	Maps  []*multimap.Map
	// MapIDs holds the index of each map among all maps.
	MapIDs []int
	Stats  observability.WorkloadStats
	// Hibernated is the occupancy captured right after hibernation.
	Hibernated multimap.Stats
}

// Values returns the number of values stored in the shard's maps.
func (s *Shard) Values() int {
	total := 0
	for _, m := range s.Maps {
		total += m.Len()
	}

	return total
}

// Report is the outcome of Run.
type Report struct {
	// Arenas is the arena set holding the maps after the run. It differs from
	// the input when a snapshot was restored.
	Arenas *multimap.ShardedArena
	Shards []*Shard
	Phases []Phase
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTracer sets the tracer used for phase spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics records operation counts and phase durations.
func WithMetrics(tm *observability.TreeMetrics) Option {
	return func(r *Runner) { r.metrics = tm }
}

// WithSnapshot serializes the hibernated arenas under basePath and continues
// the run on arenas restored from it.
func WithSnapshot(basePath string) Option {
	return func(r *Runner) { r.snapshotPath = basePath }
}

// Runner executes a workload. A Runner is used once.
type Runner struct {
	arenas       *multimap.ShardedArena
	tracer       trace.Tracer
	logger       *slog.Logger
	metrics      *observability.TreeMetrics
	shards       []*Shard
	phases       []Phase
	snapshotPath string
	cfg          Config
}

// NewRunner creates cfg.Maps empty maps, each placed on the shard serving its
// name.
func NewRunner(arenas *multimap.ShardedArena, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		arenas: arenas,
		cfg:    cfg,
		tracer: nooptrace.NewTracerProvider().Tracer(""),
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.shards = make([]*Shard, len(arenas.Shards()))
	for idx, arena := range arenas.Shards() {
		r.shards[idx] = &Shard{Arena: arena, Stats: observability.WorkloadStats{Shard: idx}}
	}

	for idx := range cfg.Maps {
		shard := r.shards[arenas.ShardIndex(MapName(idx))]
		shard.Maps = append(shard.Maps, multimap.New(shard.Arena))
		shard.MapIDs = append(shard.MapIDs, idx)
	}

	return r
}

// MapName returns the name used to place the idx-th map.
func MapName(idx int) string {
	return fmt.Sprintf("map-%d", idx)
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Run executes every phase in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	steps := []step{
		{PhasePopulate, r.eachShard(r.populate)},
		{PhaseClear, r.eachShard(r.clear)},
		{PhaseCompact, r.eachShard(r.compact)},
		{PhaseVerify, r.eachShard(r.verify)},
		{PhaseHibernate, r.hibernate},
	}

	if r.snapshotPath != "" {
		steps = append(steps, step{PhaseSnapshot, r.snapshot})
	} else {
		steps = append(steps, step{PhaseBoot, r.boot})
	}

	steps = append(steps, step{PhaseVerify, r.eachShard(r.verify)})

	for _, step := range steps {
		err := r.measure(ctx, step.name, step.run)
		if err != nil {
			return nil, err
		}
	}

	for _, shard := range r.shards {
		r.metrics.RecordWorkload(ctx, shard.Stats)
	}

	return &Report{Arenas: r.arenas, Shards: r.shards, Phases: r.phases}, nil
}

func (r *Runner) measure(ctx context.Context, name string, run func(ctx context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, "embedtree.workload."+name,
		trace.WithAttributes(attribute.Int("embedtree.shards", len(r.shards))))
	defer span.End()

	started := time.Now()
	err := run(ctx)
	elapsed := time.Since(started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return fmt.Errorf("%s: %w", name, err)
	}

	r.phases = append(r.phases, Phase{Name: name, Elapsed: elapsed})
	r.metrics.RecordPhase(ctx, name, elapsed)
	r.logger.DebugContext(ctx, "phase done", "phase", name, "elapsed", elapsed)

	return nil
}

// eachShard runs action on every shard concurrently. Shards share nothing, so
// each goroutine owns its arena exclusively.
func (r *Runner) eachShard(action func(ctx context.Context, shard *Shard) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		group, groupCtx := errgroup.WithContext(ctx)

		for idx, shard := range r.shards {
			group.Go(func() error {
				shardCtx := observability.ContextWithShard(groupCtx, idx)

				err := action(shardCtx, shard)
				if err != nil {
					return fmt.Errorf("shard %d: %w", idx, err)
				}

				r.logger.DebugContext(shardCtx, "shard done", "arena_size", shard.Arena.Size())

				return nil
			})
		}

		return group.Wait()
	}
}

func (r *Runner) opsFor(mapIdx int) int {
	ops := r.cfg.Keys / r.cfg.Maps
	if mapIdx < r.cfg.Keys%r.cfg.Maps {
		ops++
	}

	return ops
}

func (r *Runner) populate(ctx context.Context, shard *Shard) error {
	for idx, m := range shard.Maps {
		mapID := shard.MapIDs[idx]
		rng := rand.New(rand.NewPCG(r.cfg.Seed, uint64(mapID))) //nolint:gosec // reproducible workload, not crypto.

		var handles []multimap.Handle

		for op := range r.opsFor(mapID) {
			if op%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}

			if len(handles) > 0 && rng.Float64() < r.cfg.EraseRatio {
				idx := rng.IntN(len(handles))
				m.Erase(handles[idx])
				handles[idx] = handles[len(handles)-1]
				handles = handles[:len(handles)-1]
				shard.Stats.Erases++
			} else {
				item := multimap.Item{Key: rng.Uint32N(r.cfg.KeySpace), Value: uint32(op)} //nolint:gosec // op is bounded by Keys.
				handles = append(handles, m.Insert(item))
				shard.Stats.Inserts++
			}

			if r.cfg.VerifyEvery > 0 && (op+1)%r.cfg.VerifyEvery == 0 {
				err := m.Verify()
				if err != nil {
					return fmt.Errorf("map %d after %d operations: %w", m.Sentinel(), op+1, err)
				}
			}
		}
	}

	return nil
}

// clear empties every map with an odd index so compaction has gaps to fill.
func (r *Runner) clear(_ context.Context, shard *Shard) error {
	for idx, m := range shard.Maps {
		if shard.MapIDs[idx]%2 == 1 {
			shard.Stats.Prunes += int64(m.Len())
			m.Clear()
		}
	}

	return nil
}

func (r *Runner) compact(_ context.Context, shard *Shard) error {
	moves := shard.Arena.Compact()
	for _, m := range shard.Maps {
		m.Rebind(moves)
	}

	shard.Stats.Relocations += int64(len(moves))

	return nil
}

func (r *Runner) verify(_ context.Context, shard *Shard) error {
	for _, m := range shard.Maps {
		err := m.Verify()
		if err != nil {
			return fmt.Errorf("map %d: %w", m.Sentinel(), err)
		}
	}

	return nil
}

func (r *Runner) hibernate(_ context.Context) error {
	err := r.arenas.Hibernate()
	if err != nil {
		return err
	}

	for _, shard := range r.shards {
		shard.Hibernated = shard.Arena.Stats()
	}

	return nil
}

func (r *Runner) boot(_ context.Context) error {
	return r.arenas.Boot()
}

func (r *Runner) snapshot(ctx context.Context) error {
	manifest := r.manifest()
	dir, base := filepath.Split(r.snapshotPath)

	persister := NewManifestPersister(base)

	err := persister.Save(filepath.Clean(dir), manifest)
	if err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}

	err = r.arenas.Serialize(r.snapshotPath)
	if err != nil {
		return err
	}

	loaded, err := persister.Load(filepath.Clean(dir))
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	restored, err := Restore(r.snapshotPath, loaded)
	if err != nil {
		return err
	}

	for idx, arena := range restored.Arenas.Shards() {
		arena.HibernationThreshold = r.arenas.Shards()[idx].HibernationThreshold
	}

	for idx, shard := range r.shards {
		shard.Arena = restored.Arenas.Shards()[idx]

		for mapIdx, id := range shard.MapIDs {
			shard.Maps[mapIdx] = restored.Maps[id]
		}
	}

	r.arenas = restored.Arenas
	r.logger.InfoContext(ctx, "snapshot restored",
		"path", r.snapshotPath, "manifest", persister.Path(), "shards", len(r.shards))

	return nil
}

func (r *Runner) manifest() *Manifest {
	manifest := &Manifest{
		Shards: len(r.shards),
		Seed:   r.cfg.Seed,
		Maps:   make([]MapEntry, r.cfg.Maps),
	}

	for idx, shard := range r.shards {
		for mapIdx, m := range shard.Maps {
			manifest.Maps[shard.MapIDs[mapIdx]] = MapEntry{
				ID:        shard.MapIDs[mapIdx],
				Shard:     idx,
				Sentinel:  uint32(m.Sentinel()),
				Values:    m.Len(),
				Positions: m.Positions(),
			}
		}
	}

	return manifest
}

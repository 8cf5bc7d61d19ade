package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/embedtree/internal/render"
	"github.com/Sumatoshi-tech/embedtree/internal/workload"
	"github.com/Sumatoshi-tech/embedtree/pkg/config"
	"github.com/Sumatoshi-tech/embedtree/pkg/metrics"
	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
	"github.com/Sumatoshi-tech/embedtree/pkg/observability"
	"github.com/Sumatoshi-tech/embedtree/pkg/version"
)

const (
	snapshotDirPerm = 0o750
	snapshotBase    = "bench"
	arenaLabel      = "bench"
)

// BenchCommand holds the flags of the bench command.
type BenchCommand struct {
	initObservability observabilityInit

	configPath  string
	snapshotDir string
	seed        uint64
	keys        int
	shards      int
	maps        int
	metrics     bool
}

// NewBenchCommand creates the bench command.
func NewBenchCommand() *cobra.Command {
	return newBenchCommandWithDeps(observability.Init)
}

func newBenchCommandWithDeps(initObs observabilityInit) *cobra.Command {
	bc := &BenchCommand{initObservability: initObs}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a randomized multimap workload over sharded arenas",
		Long: `Run a randomized insert and erase workload over maps spread across
sharded arenas, then clear half of the maps, compact, hibernate, optionally
round-trip a snapshot, and verify every tree invariant along the way.

Settings come from the config file and EMBEDTREE_* environment variables;
flags override both.`,
		Args: cobra.NoArgs,
		RunE: bc.run,
	}

	cmd.Flags().StringVar(&bc.configPath, "config", "", "Config file (default: ./embedtree.yaml when present)")
	cmd.Flags().IntVar(&bc.keys, "keys", 0, "Total insert and erase operations")
	cmd.Flags().Uint64Var(&bc.seed, "seed", 0, "Random seed")
	cmd.Flags().IntVar(&bc.shards, "shards", 0, "Arena shards")
	cmd.Flags().IntVar(&bc.maps, "maps", 0, "Maps spread across the shards")
	cmd.Flags().StringVar(&bc.snapshotDir, "snapshot-dir", "", "Round-trip the arenas through snapshot files in this directory")
	cmd.Flags().BoolVar(&bc.metrics, "metrics", false, "Print Prometheus metrics after the run")

	return cmd
}

func (bc *BenchCommand) applyOverrides(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("keys") {
		cfg.Workload.Keys = bc.keys
	}

	if flags.Changed("seed") {
		cfg.Workload.Seed = bc.seed
	}

	if flags.Changed("shards") {
		cfg.Arena.Shards = bc.shards
	}

	if flags.Changed("maps") {
		cfg.Workload.Maps = bc.maps
	}

	if flags.Changed("snapshot-dir") {
		cfg.Arena.SnapshotDir = bc.snapshotDir
	}
}

func (bc *BenchCommand) run(cmd *cobra.Command, _ []string) (runErr error) {
	cfg, err := config.LoadConfig(bc.configPath)
	if err != nil {
		return err
	}

	bc.applyOverrides(cmd.Flags(), cfg)

	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	var (
		exporter *metrics.Exporter
		obsOpts  []observability.Option
	)

	if bc.metrics {
		exporter, err = metrics.NewExporter()
		if err != nil {
			return err
		}

		obsOpts = append(obsOpts, observability.WithMetricReader(exporter.Reader()))
	}

	obsCfg := cfg.Observability(observability.ModeBench, version.Version)
	obsCfg.LogOutput = cmd.ErrOrStderr()

	providers, err := bc.initObservability(obsCfg, obsOpts...)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	logger := providers.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	ctx, span := providers.Tracer.Start(cmd.Context(), "embedtree.bench", trace.WithAttributes(
		attribute.Int("embedtree.keys", cfg.Workload.Keys),
		attribute.Int("embedtree.shards", cfg.Arena.Shards),
		attribute.Int("embedtree.maps", cfg.Workload.Maps),
	))
	defer func() {
		if runErr != nil {
			span.RecordError(runErr)
			span.SetStatus(codes.Error, runErr.Error())
		}

		span.End()
	}()

	runnerOpts := []workload.Option{
		workload.WithTracer(providers.Tracer),
		workload.WithLogger(logger),
	}

	if providers.Meter != nil {
		treeMetrics, metricsErr := observability.NewTreeMetrics(providers.Meter)
		if metricsErr != nil {
			return metricsErr
		}

		runnerOpts = append(runnerOpts, workload.WithMetrics(treeMetrics))
	}

	if cfg.Arena.SnapshotDir != "" {
		err = os.MkdirAll(cfg.Arena.SnapshotDir, snapshotDirPerm)
		if err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}

		runnerOpts = append(runnerOpts, workload.WithSnapshot(filepath.Join(cfg.Arena.SnapshotDir, snapshotBase)))
	}

	arenas := multimap.NewShardedArena(cfg.Arena.Shards, cfg.Arena.HibernationThreshold)

	logger.InfoContext(ctx, "bench started",
		"keys", cfg.Workload.Keys, "shards", cfg.Arena.Shards, "maps", cfg.Workload.Maps, "seed", cfg.Workload.Seed)

	report, err := workload.NewRunner(arenas, workloadConfig(cfg.Workload), runnerOpts...).Run(ctx)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "bench finished", "phases", len(report.Phases))

	err = writeReport(cmd.OutOrStdout(), cfg, report)
	if err != nil {
		return err
	}

	if exporter == nil {
		return nil
	}

	err = exporter.RegisterArenas(arenaLabel, report.Arenas)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	return exporter.WriteText(cmd.OutOrStdout())
}

func workloadConfig(cfg config.WorkloadConfig) workload.Config {
	return workload.Config{
		EraseRatio:  cfg.EraseRatio,
		Seed:        cfg.Seed,
		Keys:        cfg.Keys,
		KeySpace:    cfg.KeySpace,
		Maps:        cfg.Maps,
		VerifyEvery: cfg.VerifyEvery,
	}
}

func writeReport(w io.Writer, cfg *config.Config, report *workload.Report) error {
	_, err := fmt.Fprintf(w, "%s operations over %s maps in %d shards (seed %d)\n\n",
		humanize.Comma(int64(cfg.Workload.Keys)), humanize.Comma(int64(cfg.Workload.Maps)),
		cfg.Arena.Shards, cfg.Workload.Seed)
	if err != nil {
		return err
	}

	rows := make([]render.ShardStats, len(report.Shards))
	for idx, shard := range report.Shards {
		rows[idx] = render.ShardStats{
			Shard:  idx,
			Maps:   len(shard.Maps),
			Values: shard.Values(),
			Arena:  shard.Hibernated,
		}
	}

	err = render.StatsTable(w, rows)
	if err != nil {
		return err
	}

	phases := make([]render.Phase, len(report.Phases))
	for idx, phase := range report.Phases {
		phases[idx] = render.Phase{Name: phase.Name, Elapsed: phase.Elapsed}
	}

	_, err = fmt.Fprintln(w)
	if err != nil {
		return err
	}

	return render.PhaseTable(w, phases)
}

package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/embedtree/pkg/config"
	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
	"github.com/Sumatoshi-tech/embedtree/pkg/observability"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()

	return out.String(), err
}

func writeBenchConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "embedtree.yaml")
	content := `
arena:
  shards: 2
  hibernation_threshold: 0
workload:
  keys: 2000
  key_space: 100
  maps: 4
  verify_every: 500
logging:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestParseItems(t *testing.T) {
	t.Parallel()

	items, err := parseItems([]string{"5", "7=70", "5=1"})
	require.NoError(t, err)
	assert.Equal(t, []multimap.Item{{Key: 5, Value: 0}, {Key: 7, Value: 70}, {Key: 5, Value: 1}}, items)

	for _, bad := range []string{"x", "1=", "4294967296", "-1", "1=y"} {
		_, err = parseItems([]string{bad})
		require.ErrorIs(t, err, ErrBadItem, bad)
	}
}

func TestDumpCommandText(t *testing.T) {
	t.Parallel()

	out, err := execute(t, NewDumpCommand(), "--no-color", "50", "30", "70", "30=9")
	require.NoError(t, err)

	assert.Equal(t, "50 [0]\n├─L 30 [9 1]\n└─R 70 [2]\n", out)
}

func TestDumpCommandYAML(t *testing.T) {
	t.Parallel()

	out, err := execute(t, NewDumpCommand(), "--format", "yaml", "2", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "positions: 2")
	assert.Contains(t, out, "color: black")
	assert.Contains(t, out, "values: [1]")
}

func TestDumpCommandJSON(t *testing.T) {
	t.Parallel()

	out, err := execute(t, NewDumpCommand(), "--format", "json", "2", "1", "2=7")
	require.NoError(t, err)

	assert.Contains(t, out, `"positions": 2`)
	assert.Contains(t, out, `"color": "black"`)
	assert.True(t, strings.HasPrefix(out, "["), out)
}

func TestDumpCommandErrors(t *testing.T) {
	t.Parallel()

	_, err := execute(t, NewDumpCommand(), "--format", "xml", "1")
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = execute(t, NewDumpCommand(), "one")
	require.ErrorIs(t, err, ErrBadItem)
}

func TestSnapshotSaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "map.snap")

	out, err := execute(t, NewSnapshotCommand(), "save", path, "3", "1", "2", "3=30")
	require.NoError(t, err)
	assert.Contains(t, out, "saved 4 values under 3 keys")

	out, err = execute(t, NewSnapshotCommand(), "load", "--no-color", path)
	require.NoError(t, err)
	assert.Equal(t, "2 [2]\n├─L 1 [1]\n└─R 3 [30 0]\n", out)

	_, err = execute(t, NewSnapshotCommand(), "load", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestSnapshotLoadCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.snap")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o600))

	_, err := execute(t, NewSnapshotCommand(), "load", path)
	require.ErrorIs(t, err, multimap.ErrBadMagic)
}

func TestSnapshotLoadFlippedByte(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "map.snap")

	_, err := execute(t, NewSnapshotCommand(), "save", path, "5", "4", "3", "2", "1", "3=30")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	data[len(data)/2] ^= 0x10
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = execute(t, NewSnapshotCommand(), "load", path)
	require.Error(t, err)
}

func stubObservability(tp *sdktrace.TracerProvider) observabilityInit {
	return func(_ observability.Config, _ ...observability.Option) (observability.Providers, error) {
		return observability.Providers{
			Tracer:   tp.Tracer("embedtree"),
			Shutdown: func(_ context.Context) error { return nil },
		}, nil
	}
}

func TestBenchCommand(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	out, err := execute(t, newBenchCommandWithDeps(stubObservability(tp)),
		"--config", writeBenchConfig(t), "--seed", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "2,000 operations over 4 maps in 2 shards (seed 3)")
	assert.Contains(t, out, "FRAGMENTATION")
	assert.Contains(t, out, "populate")
	assert.Contains(t, out, "hibernate")

	var root bool

	for _, span := range exporter.GetSpans() {
		if span.Name == "embedtree.bench" {
			root = true
		}
	}

	assert.True(t, root, "bench span should be exported")
}

func TestBenchCommandSnapshotAndMetrics(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "snapshots")

	out, err := execute(t, NewBenchCommand(),
		"--config", writeBenchConfig(t), "--snapshot-dir", dir, "--metrics", "--shards", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "snapshot")
	assert.Contains(t, out, `embedtree_arena_entries{arena="bench",shard="2"}`)
	assert.FileExists(t, filepath.Join(dir, "bench.shard.2"))
	assert.True(t, strings.Contains(out, "embedtree_inserts_total") || strings.Contains(out, "embedtree.inserts.total"))
}

func TestBenchCommandInvalidOverride(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()

	_, err := execute(t, newBenchCommandWithDeps(stubObservability(tp)),
		"--config", writeBenchConfig(t), "--maps", "0")
	require.ErrorIs(t, err, config.ErrInvalidMaps)
}

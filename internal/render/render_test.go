package render_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/embedtree/internal/render"
	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
)

func smallMap() *multimap.Map {
	m := multimap.New(multimap.NewArena())

	for _, kv := range [][2]uint32{{50, 50}, {30, 30}, {70, 70}, {30, 31}, {20, 20}} {
		m.Insert(multimap.Item{Key: kv[0], Value: kv[1]})
	}

	return m
}

func TestTree(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, render.Tree(&buf, smallMap(), render.TreeOptions{NoColor: true}))

	want := "50 [50]\n" +
		"├─L 30 [31 30]\n" +
		"│  └─L 20 [20]\n" +
		"└─R 70 [70]\n"

	assert.Equal(t, want, buf.String())
}

func TestTreeMaxValues(t *testing.T) {
	t.Parallel()

	m := multimap.New(multimap.NewArena())
	for value := range uint32(5) {
		m.Insert(multimap.Item{Key: 1, Value: value})
	}

	var buf bytes.Buffer
	require.NoError(t, render.Tree(&buf, m, render.TreeOptions{NoColor: true, MaxValues: 2}))

	assert.Equal(t, "1 [4 3 +3]\n", buf.String())
}

func TestTreeEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, render.Tree(&buf, multimap.New(multimap.NewArena()), render.TreeOptions{}))

	assert.Equal(t, "(empty)\n", buf.String())
}

func TestYAML(t *testing.T) {
	t.Parallel()

	m := smallMap()

	var buf bytes.Buffer
	require.NoError(t, render.YAML(&buf, m))

	var doc render.Document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, m.Sentinel(), doc.Sentinel)
	assert.Equal(t, 5, doc.Values)
	assert.Equal(t, 4, doc.Positions)

	require.NotNil(t, doc.Root)
	assert.Equal(t, uint32(50), doc.Root.Key)
	assert.Equal(t, "black", doc.Root.Color)
	require.NotNil(t, doc.Root.Left)
	assert.Equal(t, []uint32{31, 30}, doc.Root.Left.Values)
	assert.Equal(t, "black", doc.Root.Left.Color)
	require.NotNil(t, doc.Root.Left.Left)
	assert.Equal(t, "red", doc.Root.Left.Left.Color)
	assert.Nil(t, doc.Root.Left.Right)
}

func TestJSON(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	empty := multimap.New(arena)

	var buf bytes.Buffer
	require.NoError(t, render.JSON(&buf, smallMap(), empty))
	assert.Contains(t, buf.String(), "\n  {", "output is indented")

	var docs []render.Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &docs))
	require.Len(t, docs, 2)

	assert.Equal(t, 5, docs[0].Values)
	require.NotNil(t, docs[0].Root)
	assert.Equal(t, uint32(50), docs[0].Root.Key)
	assert.Equal(t, []uint32{31, 30}, docs[0].Root.Left.Values)

	assert.Equal(t, empty.Sentinel(), docs[1].Sentinel)
	assert.Nil(t, docs[1].Root)
	assert.NotContains(t, buf.String(), `"root": null`)
}

func TestYAMLStream(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	first, second := multimap.New(arena), multimap.New(arena)
	first.Insert(multimap.Item{Key: 1, Value: 1})

	var buf bytes.Buffer
	require.NoError(t, render.YAML(&buf, first, second))

	decoder := yaml.NewDecoder(&buf)

	var docs []render.Document

	for {
		var doc render.Document
		if decoder.Decode(&doc) != nil {
			break
		}

		docs = append(docs, doc)
	}

	require.Len(t, docs, 2)
	assert.NotNil(t, docs[0].Root)
	assert.Nil(t, docs[1].Root)
}

func TestStatsTable(t *testing.T) {
	t.Parallel()

	rows := []render.ShardStats{
		{Shard: 0, Maps: 2, Values: 1234, Arena: multimap.Stats{Entries: 1500, Used: 1236, Free: 263}},
		{Shard: 1, Maps: 1, Values: 10, Arena: multimap.Stats{Entries: 12, Used: 11, HibernatedBytes: 2048, Hibernated: true}},
	}

	var buf bytes.Buffer
	require.NoError(t, render.StatsTable(&buf, rows))

	out := buf.String()
	assert.Contains(t, out, "FRAGMENTATION")
	assert.Contains(t, out, "1,234")
	assert.Contains(t, out, "17.5%")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "TOTAL 2")
	assert.Contains(t, out, "1,244")
}

func TestPhaseTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, render.PhaseTable(&buf, []render.Phase{
		{Name: "populate", Elapsed: 1500 * time.Microsecond},
		{Name: "hibernate", Elapsed: 2 * time.Millisecond},
	}))

	out := buf.String()
	assert.Contains(t, out, "populate")
	assert.Contains(t, out, "1.5ms")
	assert.Contains(t, strings.ToUpper(out), "3.5MS", "footer holds the sum")
}

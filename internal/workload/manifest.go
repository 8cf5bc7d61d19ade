package workload

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
	"github.com/Sumatoshi-tech/embedtree/pkg/persist"
	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
)

// ErrBadManifest is returned when a manifest does not describe the snapshot
// it accompanies.
var ErrBadManifest = errors.New("manifest does not match snapshot")

// manifestSuffix is appended to the snapshot base name.
const manifestSuffix = ".manifest"

// Manifest describes the maps stored in a sharded snapshot, so that they can
// be reattached in their original order.
type Manifest struct {
	Shards int        `yaml:"shards"`
	Seed   uint64     `yaml:"seed"`
	Maps   []MapEntry `yaml:"maps"`
}

// MapEntry locates one map inside a snapshot.
type MapEntry struct {
	ID        int    `yaml:"id"`
	Shard     int    `yaml:"shard"`
	Sentinel  uint32 `yaml:"sentinel"`
	Values    int    `yaml:"values"`
	Positions int    `yaml:"positions"`
}

type sentinelLocation struct {
	shard    int
	sentinel uint32
}

// Restored is a snapshot loaded back into memory.
type Restored struct {
	Arenas *multimap.ShardedArena
	// Maps is indexed by MapEntry.ID.
	Maps []*multimap.Map
}

// NewManifestPersister returns the persister storing the manifest of the
// snapshot with the given base name.
func NewManifestPersister(base string) *persist.Persister[Manifest] {
	return persist.NewPersister[Manifest](base+manifestSuffix, persist.NewYAMLCodec())
}

// Restore deserializes and boots the shards saved under basePath and attaches
// every map listed in manifest, checking its size against the recorded one.
// Each id in [0, len(manifest.Maps)) and each sentinel must appear once.
func Restore(basePath string, manifest *Manifest) (*Restored, error) {
	if manifest.Shards <= 0 {
		return nil, fmt.Errorf("%w: %d shards", ErrBadManifest, manifest.Shards)
	}

	arenas := multimap.NewShardedArena(manifest.Shards, 0)

	err := arenas.Deserialize(basePath)
	if err != nil {
		return nil, err
	}

	err = arenas.Boot()
	if err != nil {
		return nil, err
	}

	restored := &Restored{Arenas: arenas, Maps: make([]*multimap.Map, len(manifest.Maps))}
	sentinels := make(map[sentinelLocation]bool, len(manifest.Maps))

	for _, entry := range manifest.Maps {
		m, err := attachEntry(arenas, entry, len(manifest.Maps))
		if err != nil {
			return nil, err
		}

		location := sentinelLocation{shard: entry.Shard, sentinel: entry.Sentinel}

		switch {
		case restored.Maps[entry.ID] != nil:
			return nil, fmt.Errorf("%w: map %d is listed twice", ErrBadManifest, entry.ID)
		case sentinels[location]:
			return nil, fmt.Errorf("%w: sentinel %d on shard %d is listed twice",
				ErrBadManifest, entry.Sentinel, entry.Shard)
		}

		sentinels[location] = true
		restored.Maps[entry.ID] = m
	}

	return restored, nil
}

func attachEntry(arenas *multimap.ShardedArena, entry MapEntry, maps int) (*multimap.Map, error) {
	if entry.ID < 0 || entry.ID >= maps || entry.Shard < 0 || entry.Shard >= len(arenas.Shards()) {
		return nil, fmt.Errorf("%w: map %d on shard %d", ErrBadManifest, entry.ID, entry.Shard)
	}

	m, err := multimap.Attach(arenas.Shards()[entry.Shard], multimap.Handle(entry.Sentinel))

	switch {
	case errors.Is(err, rbtree.ErrNotSentinel):
		return nil, fmt.Errorf("%w: map %d: %w", ErrBadManifest, entry.ID, err)
	case err != nil:
		return nil, fmt.Errorf("map %d: %w", entry.ID, err)
	}

	if m.Len() != entry.Values || m.Positions() != entry.Positions {
		return nil, fmt.Errorf("%w: map %d has %d values under %d keys, saved %d under %d",
			ErrSnapshotMismatch, entry.ID, m.Len(), m.Positions(), entry.Values, entry.Positions)
	}

	return m, nil
}

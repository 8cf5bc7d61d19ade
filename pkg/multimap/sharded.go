package multimap

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
)

// ErrSerializeShards is returned when shard serialization fails.
var ErrSerializeShards = errors.New("failed to serialize shards")

// ErrDeserializeShards is returned when shard deserialization fails.
var ErrDeserializeShards = errors.New("failed to deserialize shards")

// minHibernationThreshold is the minimal reasonable default if division results in 0.
const minHibernationThreshold = 1000

// ShardedArena spreads maps over several arenas so that independent shards can
// be hibernated, booted and persisted in parallel. Each shard is still used by
// one goroutine at a time.
type ShardedArena struct {
	shards []*Arena
}

// NewShardedArena creates a ShardedArena with shardCount shards sharing the
// hibernation threshold evenly.
func NewShardedArena(shardCount, hibernationThreshold int) *ShardedArena {
	if shardCount <= 0 {
		shardCount = 1
	}

	shards := make([]*Arena, shardCount)

	for idx := range shardCount {
		shards[idx] = NewArena()

		if hibernationThreshold > 0 {
			shards[idx].HibernationThreshold = hibernationThreshold / shardCount
			if shards[idx].HibernationThreshold == 0 {
				shards[idx].HibernationThreshold = minHibernationThreshold
			}
		}
	}

	return &ShardedArena{shards: shards}
}

// GetShard returns the arena shard for the given name.
func (sa *ShardedArena) GetShard(name string) *Arena {
	return sa.shards[sa.ShardIndex(name)]
}

// ShardIndex returns the index of the shard serving name.
func (sa *ShardedArena) ShardIndex(name string) int {
	hasher := fnv.New32a()
	hasher.Write([]byte(name))

	return int(hasher.Sum32() % uint32(len(sa.shards))) //nolint:gosec // shard count is small and positive.
}

// Shards returns all underlying arenas.
func (sa *ShardedArena) Shards() []*Arena {
	return sa.shards
}

// Hibernate hibernates all shards in parallel, regardless of their thresholds.
func (sa *ShardedArena) Hibernate() error {
	return sa.parallel(func(_ int, arena *Arena) error {
		originalThreshold := arena.HibernationThreshold
		arena.HibernationThreshold = 0

		defer func() { arena.HibernationThreshold = originalThreshold }()

		return arena.Hibernate()
	})
}

// Boot boots all shards in parallel.
func (sa *ShardedArena) Boot() error {
	return sa.parallel(func(_ int, arena *Arena) error {
		return arena.Boot()
	})
}

// Serialize writes every hibernated shard to disk.
// It uses basePath as a prefix and appends ".shard.N".
func (sa *ShardedArena) Serialize(basePath string) error {
	err := sa.parallel(func(idx int, arena *Arena) error {
		return arena.Serialize(shardPath(basePath, idx))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerializeShards, err)
	}

	return nil
}

// Deserialize reads all shards from disk.
func (sa *ShardedArena) Deserialize(basePath string) error {
	err := sa.parallel(func(idx int, arena *Arena) error {
		return arena.Deserialize(shardPath(basePath, idx))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeserializeShards, err)
	}

	return nil
}

func (sa *ShardedArena) parallel(action func(idx int, arena *Arena) error) error {
	errs := make([]error, len(sa.shards))

	wg := sync.WaitGroup{}
	wg.Add(len(sa.shards))

	for idx, shard := range sa.shards {
		go func(shardIdx int, arena *Arena) {
			defer wg.Done()

			err := action(shardIdx, arena)
			if err != nil {
				errs[shardIdx] = fmt.Errorf("shard %d: %w", shardIdx, err)
			}
		}(idx, shard)
	}

	wg.Wait()

	return errors.Join(errs...)
}

func shardPath(basePath string, idx int) string {
	return fmt.Sprintf("%s.shard.%d", basePath, idx)
}

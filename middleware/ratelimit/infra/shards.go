package infra

import (
	"sync"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

// shardedMap é uma tabela de locks listrada: cada shard tem seu próprio mutex,
// escolhido por xxhash(key) % len(shards). Só serializa chaves do mesmo shard.
type shardedMap[V any] struct {
	shards []shard[V]
}

type shard[V any] struct {
	mu sync.Mutex
	m  map[domain.Key]V
}

func newShardedMap[V any](n int) *shardedMap[V] {
	if n <= 0 {
		n = defaultShards
	}
	s := &shardedMap[V]{shards: make([]shard[V], n)}
	for i := range s.shards {
		s.shards[i].m = make(map[domain.Key]V)
	}
	return s
}

func (s *shardedMap[V]) shardFor(key domain.Key) *shard[V] {
	return &s.shards[xxhash.Sum64String(string(key))%uint64(len(s.shards))]
}

func (s *shardedMap[V]) len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

// sweep remove as entradas para as quais drop devolve true. Trava um shard por vez.
func (s *shardedMap[V]) sweep(drop func(V) bool) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.m {
			if drop(v) {
				delete(sh.m, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

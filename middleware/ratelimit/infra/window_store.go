package infra

import (
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// WindowStore é a implementação em memória de domain.WindowStore.
//
// As entradas ficam num mapa listrado (ver shardedMap) e só saem via Sweep:
// uma entrada é descartada quando a janela dela terminou há mais de `retention`.
type WindowStore struct {
	entries   *shardedMap[domain.WindowEntry]
	retention time.Duration
}

type WindowStoreOption func(*storeOptions)

type storeOptions struct {
	shards    int
	retention time.Duration
}

func WithShards(n int) WindowStoreOption {
	return func(o *storeOptions) { o.shards = n }
}

// WithRetention define o horizonte de retenção usado por Sweep.
func WithRetention(d time.Duration) WindowStoreOption {
	return func(o *storeOptions) { o.retention = d }
}

func NewWindowStore(opts ...WindowStoreOption) *WindowStore {
	o := storeOptions{shards: defaultShards, retention: 24 * time.Hour}
	for _, opt := range opts {
		opt(&o)
	}
	return &WindowStore{
		entries:   newShardedMap[domain.WindowEntry](o.shards),
		retention: o.retention,
	}
}

// Apply implementa domain.WindowStore.
func (s *WindowStore) Apply(key domain.Key, now time.Time, fn func(cur domain.WindowEntry, found bool) domain.WindowEntry) error {
	sh := s.entries.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, found := sh.m[key]
	if found {
		if reason := validateWindowEntry(cur, now); reason != "" {
			delete(sh.m, key)
			return &domain.CorruptEntryError{Key: key, Reason: reason}
		}
	}
	sh.m[key] = fn(cur, found)
	return nil
}

// Um início até uma janela à frente de now é aceito: o now de uma goroutine pode
// ser anterior ao de outra que pegou o lock primeiro.
func validateWindowEntry(e domain.WindowEntry, now time.Time) string {
	switch {
	case e.Count < 0:
		return "negative count"
	case e.WindowStart.IsZero():
		return "zero window start"
	case e.WindowSeconds <= 0:
		return "non-positive window"
	case e.WindowStart.After(now.Add(time.Duration(e.WindowSeconds) * time.Second)):
		return "window start in the future"
	}
	return ""
}

// Sweep remove entradas cuja janela terminou há mais de retention.
func (s *WindowStore) Sweep(now time.Time) int {
	return s.entries.sweep(func(e domain.WindowEntry) bool {
		return e.Expired(now, s.retention)
	})
}

func (s *WindowStore) Len() int { return s.entries.len() }

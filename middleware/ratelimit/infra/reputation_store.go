package infra

import (
	"math"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ReputationStore guarda score/violações por chave, no mesmo esquema listrado
// do WindowStore. Entradas sem acesso há mais de retention saem no Sweep
// (o cliente volta a ser tratado como novo).
type ReputationStore struct {
	entries   *shardedMap[domain.ReputationEntry]
	retention time.Duration
}

func NewReputationStore(opts ...WindowStoreOption) *ReputationStore {
	o := storeOptions{shards: defaultShards, retention: 24 * time.Hour}
	for _, opt := range opts {
		opt(&o)
	}
	return &ReputationStore{
		entries:   newShardedMap[domain.ReputationEntry](o.shards),
		retention: o.retention,
	}
}

// Apply implementa domain.ReputationStore.
func (s *ReputationStore) Apply(key domain.Key, fn func(cur domain.ReputationEntry, found bool) domain.ReputationEntry) error {
	sh := s.entries.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, found := sh.m[key]
	if found {
		if reason := validateReputationEntry(cur); reason != "" {
			delete(sh.m, key)
			return &domain.CorruptEntryError{Key: key, Reason: reason}
		}
	}
	sh.m[key] = fn(cur, found)
	return nil
}

func (s *ReputationStore) Load(key domain.Key) (domain.ReputationEntry, bool) {
	sh := s.entries.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.m[key]
	return e, ok
}

func validateReputationEntry(e domain.ReputationEntry) string {
	switch {
	case math.IsNaN(e.Score) || e.Score < 0 || e.Score > 1:
		return "score out of range"
	case e.Violations < 0:
		return "negative violations"
	}
	return ""
}

func (s *ReputationStore) Sweep(now time.Time) int {
	cutoff := now.Add(-s.retention)
	return s.entries.sweep(func(e domain.ReputationEntry) bool {
		return e.LastSeen.Before(cutoff)
	})
}

func (s *ReputationStore) Len() int { return s.entries.len() }

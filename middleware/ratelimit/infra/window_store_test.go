package infra

import (
	"errors"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incr(now time.Time) func(domain.WindowEntry, bool) domain.WindowEntry {
	return func(cur domain.WindowEntry, found bool) domain.WindowEntry {
		if !found {
			return domain.WindowEntry{Count: 1, WindowStart: now, MaxRequests: 10, WindowSeconds: 60}
		}
		cur.Count++
		return cur
	}
}

func TestWindowStore_ApplyCreatesThenUpdates(t *testing.T) {
	s := NewWindowStore(WithShards(4))
	now := time.Unix(1_700_000_000, 0)

	var seen []bool
	for range 3 {
		err := s.Apply("k", now, func(cur domain.WindowEntry, found bool) domain.WindowEntry {
			seen = append(seen, found)
			return incr(now)(cur, found)
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []bool{false, true, true}, seen)
	assert.Equal(t, 1, s.Len())

	var last domain.WindowEntry
	require.NoError(t, s.Apply("k", now, func(cur domain.WindowEntry, _ bool) domain.WindowEntry {
		last = cur
		return cur
	}))
	assert.Equal(t, 3, last.Count)
}

func TestWindowStore_CorruptEntryIsDroppedAndReported(t *testing.T) {
	s := NewWindowStore()
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Apply("k", now, func(domain.WindowEntry, bool) domain.WindowEntry {
		return domain.WindowEntry{Count: -1, WindowStart: now, WindowSeconds: 60}
	}))

	called := false
	err := s.Apply("k", now, func(cur domain.WindowEntry, found bool) domain.WindowEntry {
		called = true
		return cur
	})
	require.Error(t, err)
	assert.False(t, called, "fn must not run on a corrupt entry")
	assert.True(t, errors.Is(err, domain.ErrCorruptEntry))

	var ce *domain.CorruptEntryError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.Key("k"), ce.Key)
	assert.Equal(t, "negative count", ce.Reason)

	// a entrada foi descartada: o próximo acesso começa do zero
	var found bool
	require.NoError(t, s.Apply("k", now, func(cur domain.WindowEntry, f bool) domain.WindowEntry {
		found = f
		return incr(now)(cur, f)
	}))
	assert.False(t, found)
}

func TestWindowStore_SweepDropsOnlyPastRetention(t *testing.T) {
	s := NewWindowStore(WithRetention(time.Hour))
	start := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Apply("old", start, incr(start)))
	require.NoError(t, s.Apply("fresh", start.Add(2*time.Hour), incr(start.Add(2*time.Hour))))

	// "old" terminou em start+60s; 2h depois passou da retenção de 1h
	removed := s.Sweep(start.Add(2*time.Hour + time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}

func TestWindowStore_ApplyIsAtomicPerKey(t *testing.T) {
	s := NewWindowStore(WithShards(2))
	now := time.Unix(1_700_000_000, 0)

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			_ = s.Apply("k", now, incr(now))
		}()
	}
	wg.Wait()

	var got int
	require.NoError(t, s.Apply("k", now, func(cur domain.WindowEntry, _ bool) domain.WindowEntry {
		got = cur.Count
		return cur
	}))
	assert.Equal(t, workers, got)
}

func TestWindowStore_FutureStartIsCorrupt(t *testing.T) {
	s := NewWindowStore()
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Apply("skew", now, incr(now.Add(30*time.Second))))
	require.NoError(t, s.Apply("skew", now, func(cur domain.WindowEntry, _ bool) domain.WindowEntry { return cur }),
		"a start within one window ahead is tolerated")

	require.NoError(t, s.Apply("future", now, incr(now.Add(time.Hour))))
	err := s.Apply("future", now, func(cur domain.WindowEntry, _ bool) domain.WindowEntry { return cur })

	var ce *domain.CorruptEntryError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "window start in the future", ce.Reason)
	assert.Equal(t, 1, s.Len())
}

package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_RunOnceSweepsEveryTarget(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	windows := NewWindowStore(WithRetention(time.Minute))
	reps := NewReputationStore(WithRetention(time.Minute))

	require.NoError(t, windows.Apply("a", start, incr(start)))
	require.NoError(t, reps.Apply("a", func(domain.ReputationEntry, bool) domain.ReputationEntry {
		return domain.NewReputationEntry(start)
	}))

	left := map[string]int{}
	j := &Janitor{
		Targets: []SweepTarget{{Name: "window", Store: windows}, {Name: "reputation", Store: reps}},
		OnSweep: func(name string, keys int) { left[name] = keys },
		Now:     func() time.Time { return start.Add(time.Hour) },
	}

	removed := j.RunOnce()
	assert.Equal(t, map[string]int{"window": 1, "reputation": 1}, removed)
	assert.Equal(t, map[string]int{"window": 0, "reputation": 0}, left)
}

func TestJanitor_StartStopsWithContext(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	j := &Janitor{
		Every:   2 * time.Millisecond,
		Targets: []SweepTarget{{Name: "window", Store: NewWindowStore()}},
		OnSweep: func(string, int) {
			mu.Lock()
			runs++
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	}, time.Second, time.Millisecond)
	cancel()
}

package application

import (
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker() ReputationTracker {
	return ReputationTracker{
		Store:  infra.NewReputationStore(),
		Policy: DefaultReputationPolicy(),
		Clock:  func() time.Time { return t0 },
	}
}

func TestReputationPolicy_Scale(t *testing.T) {
	p := DefaultReputationPolicy()
	base := domain.Params{MaxRequests: 100, WindowSeconds: 60}

	cases := []struct {
		name  string
		entry domain.ReputationEntry
		base  domain.Params
		want  domain.Params
	}{
		{"good score loosens, window floor 60", domain.ReputationEntry{Score: 0.9}, base, domain.Params{MaxRequests: 150, WindowSeconds: 60}},
		{"good score shrinks long window", domain.ReputationEntry{Score: 0.9}, domain.Params{MaxRequests: 100, WindowSeconds: 300}, domain.Params{MaxRequests: 150, WindowSeconds: 240}},
		{"neutral score keeps base", domain.ReputationEntry{Score: 0.5}, base, base},
		{"threshold itself is neutral", domain.ReputationEntry{Score: 0.7}, base, base},
		{"bad score tightens", domain.ReputationEntry{Score: 0.1}, base, domain.Params{MaxRequests: 50, WindowSeconds: 90}},
		{"bad score floor 10", domain.ReputationEntry{Score: 0.1}, domain.Params{MaxRequests: 10, WindowSeconds: 60}, domain.Params{MaxRequests: 10, WindowSeconds: 90}},
		{"bad score with 3 violations", domain.ReputationEntry{Score: 0.1, Violations: 3}, base, domain.Params{MaxRequests: 20, WindowSeconds: 117}},
		{"max violations hits multiplier floor", domain.ReputationEntry{Score: 0.5, Violations: 5}, base, domain.Params{MaxRequests: 10, WindowSeconds: 90}},
		{"violations floor 5", domain.ReputationEntry{Score: 0.5, Violations: 5}, domain.Params{MaxRequests: 20, WindowSeconds: 60}, domain.Params{MaxRequests: 5, WindowSeconds: 90}},
		{"half rounds to even", domain.ReputationEntry{Score: 0.9}, domain.Params{MaxRequests: 3, WindowSeconds: 60}, domain.Params{MaxRequests: 4, WindowSeconds: 60}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Scale(tc.entry, tc.base)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Scale mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReputationPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultReputationPolicy().Validate())

	p := DefaultReputationPolicy()
	p.BadThreshold = 0.8
	assert.Error(t, p.Validate())

	p = DefaultReputationPolicy()
	p.GoodThreshold = 1.5
	assert.Error(t, p.Validate())
}

func TestReputationTracker_UnknownKeyIsNotCreated(t *testing.T) {
	tr := newTracker()

	eff := tr.EffectiveLimits("ghost", domain.Params{MaxRequests: 10, WindowSeconds: 60})
	assert.Equal(t, domain.Params{MaxRequests: 15, WindowSeconds: 60}, eff)

	_, ok := tr.Store.Load("ghost")
	assert.False(t, ok)
}

func TestReputationTracker_UpdateAndViolations(t *testing.T) {
	tr := newTracker()

	require.NoError(t, tr.Update("k", false))
	assert.InDelta(t, 0.95, tr.Snapshot("k").Score, 1e-9)

	require.NoError(t, tr.Update("k", true))
	assert.InDelta(t, 0.96, tr.Snapshot("k").Score, 1e-9)

	for range 10 {
		require.NoError(t, tr.RecordViolation("k"))
	}
	assert.Equal(t, 5, tr.Snapshot("k").Violations)
	assert.Equal(t, t0, tr.Snapshot("k").LastSeen)
}

func TestReputationTracker_ScoreBounds(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("score stays within [0,1]", prop.ForAll(
		func(outcomes []bool) bool {
			tr := newTracker()
			for _, ok := range outcomes {
				if err := tr.Update("k", ok); err != nil {
					return false
				}
				s := tr.Snapshot("k").Score
				if s < 0 || s > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("all failures never raise the score", prop.ForAll(
		func(n int) bool {
			tr := newTracker()
			prev := 1.0
			for range n {
				_ = tr.Update("k", false)
				s := tr.Snapshot("k").Score
				if s > prev {
					return false
				}
				prev = s
			}
			return n <= 20 || prev == 0
		},
		gen.IntRange(0, 60),
	))

	properties.Property("all successes never lower the score", prop.ForAll(
		func(start int, n int) bool {
			tr := newTracker()
			for range start {
				_ = tr.Update("k", false)
			}
			prev := tr.Snapshot("k").Score
			for range n {
				_ = tr.Update("k", true)
				s := tr.Snapshot("k").Score
				if s < prev {
					return false
				}
				prev = s
			}
			return true
		},
		gen.IntRange(0, 25),
		gen.IntRange(0, 150),
	))

	properties.TestingRun(t)
}

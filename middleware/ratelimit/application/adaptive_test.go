package application

import (
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdaptive(policy ReputationPolicy, base domain.Params) AdaptiveLimiter {
	tr := newTracker()
	tr.Policy = policy
	return AdaptiveLimiter{
		Window:  FixedWindowLimiter{Store: infra.NewWindowStore()},
		Tracker: tr,
		Base:    base,
	}
}

func TestAdaptiveLimiter_NewClientGetsLooserLimit(t *testing.T) {
	l := newAdaptive(DefaultReputationPolicy(), domain.Params{MaxRequests: 10, WindowSeconds: 60})

	dec, err := l.Admit("k", t0)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, domain.ModeAdaptive, dec.Mode)
	assert.Equal(t, 15, dec.Limit)
	assert.Equal(t, 14, dec.Remaining)
	require.NotNil(t, dec.Reputation)
	assert.Equal(t, 1.0, dec.Reputation.Score)
}

func TestAdaptiveLimiter_DenialRecordsViolation(t *testing.T) {
	l := newAdaptive(DefaultReputationPolicy(), domain.Params{MaxRequests: 10, WindowSeconds: 60})

	for i := range 15 {
		dec, err := l.Admit("k", t0)
		require.NoError(t, err)
		require.True(t, dec.Allowed, "request %d", i+1)
	}

	dec, err := l.Admit("k", t0)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 1, dec.Reputation.Violations)
	// sem PenalizeDenials o score não muda na negação
	assert.Equal(t, 1.0, dec.Reputation.Score)

	// a violação aperta o limite: 15 * 0.8 = 12, janela 66
	dec, err = l.Admit("k", t0)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 12, dec.Limit)
	assert.Equal(t, 66, dec.WindowSeconds)
	assert.Equal(t, 2, dec.Reputation.Violations)
}

func TestAdaptiveLimiter_PenalizeDenialsLowersScore(t *testing.T) {
	policy := DefaultReputationPolicy()
	policy.PenalizeDenials = true
	l := newAdaptive(policy, domain.Params{MaxRequests: 10, WindowSeconds: 60})

	for range 15 {
		_, _ = l.Admit("k", t0)
	}
	dec, err := l.Admit("k", t0)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.InDelta(t, 0.95, dec.Reputation.Score, 1e-9)
}

func TestAdaptiveLimiter_CompleteFeedsScore(t *testing.T) {
	l := newAdaptive(DefaultReputationPolicy(), domain.Params{MaxRequests: 10, WindowSeconds: 60})

	require.NoError(t, l.Complete("k", false))
	require.NoError(t, l.Complete("k", false))
	assert.InDelta(t, 0.9, l.Tracker.Snapshot("k").Score, 1e-9)
}

// Cruzar um limiar muda o limite efetivo, mas a contagem da janela em curso
// continua valendo: não existe reset gratuito.
func TestAdaptiveLimiter_ThresholdCrossingKeepsCount(t *testing.T) {
	l := newAdaptive(DefaultReputationPolicy(), domain.Params{MaxRequests: 10, WindowSeconds: 60})

	for range 10 {
		dec, err := l.Admit("k", t0)
		require.NoError(t, err)
		require.True(t, dec.Allowed)
		require.Equal(t, 15, dec.Limit)
	}

	// 7 falhas: 1.0 -> 0.65, abaixo do limiar bom; limite efetivo volta a 10
	for range 7 {
		require.NoError(t, l.Complete("k", false))
	}
	require.Less(t, l.Tracker.Snapshot("k").Score, 0.7)

	dec, err := l.Admit("k", t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.False(t, dec.Allowed, "count of 10 must carry over to the tighter limit")
	assert.Equal(t, 10, dec.Limit)
	assert.Equal(t, 0, dec.Remaining)
	assert.Equal(t, t0.Unix()+60, dec.ResetEpoch)
}

func TestBasicLimiter_IgnoresReputation(t *testing.T) {
	l := BasicLimiter{
		Window: FixedWindowLimiter{Store: infra.NewWindowStore()},
		Params: domain.Params{MaxRequests: 2, WindowSeconds: 60},
	}

	dec, err := l.Admit("k", t0)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeBasic, dec.Mode)
	assert.Equal(t, 2, dec.Limit)
	assert.Nil(t, dec.Reputation)
	assert.NoError(t, l.Complete("k", false))
	assert.Equal(t, domain.ModeBasic, l.Mode())
}

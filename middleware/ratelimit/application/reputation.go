package application

import (
	"fmt"
	"math"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ReputationPolicy são os parâmetros do score de comportamento.
type ReputationPolicy struct {
	GoodThreshold float64
	BadThreshold  float64
	MaxViolations int

	SuccessDelta float64
	FailureDelta float64

	// PenalizeDenials: uma negação também conta como falha no score,
	// além de registrar a violação.
	PenalizeDenials bool
}

func DefaultReputationPolicy() ReputationPolicy {
	return ReputationPolicy{
		GoodThreshold: 0.7,
		BadThreshold:  0.3,
		MaxViolations: 5,
		SuccessDelta:  0.01,
		FailureDelta:  -0.05,
	}
}

func (p ReputationPolicy) Validate() error {
	if p.GoodThreshold < 0 || p.GoodThreshold > 1 || p.BadThreshold < 0 || p.BadThreshold > 1 {
		return fmt.Errorf("reputation thresholds must be in [0,1] (good=%v bad=%v)", p.GoodThreshold, p.BadThreshold)
	}
	if p.BadThreshold > p.GoodThreshold {
		return fmt.Errorf("bad threshold %v above good threshold %v", p.BadThreshold, p.GoodThreshold)
	}
	if p.MaxViolations < 0 {
		return fmt.Errorf("max violations must be >= 0, got %d", p.MaxViolations)
	}
	return nil
}

// ReputationTracker mantém score e violações por chave e calcula o limite efetivo.
type ReputationTracker struct {
	Store  domain.ReputationStore
	Policy ReputationPolicy
	Clock  func() time.Time
}

func (t ReputationTracker) now() time.Time {
	if t.Clock != nil {
		return t.Clock()
	}
	return time.Now()
}

// Update ajusta o score após a resposta do handler (success = status < 400).
func (t ReputationTracker) Update(key domain.Key, success bool) error {
	delta := t.Policy.FailureDelta
	if success {
		delta = t.Policy.SuccessDelta
	}
	return t.apply(key, func(e domain.ReputationEntry) domain.ReputationEntry {
		e.Score += delta
		return e
	})
}

// RecordViolation soma uma violação, limitada a Policy.MaxViolations.
func (t ReputationTracker) RecordViolation(key domain.Key) error {
	return t.apply(key, func(e domain.ReputationEntry) domain.ReputationEntry {
		e.Violations++
		return e
	})
}

func (t ReputationTracker) apply(key domain.Key, fn func(domain.ReputationEntry) domain.ReputationEntry) error {
	now := t.now()
	err := t.Store.Apply(key, func(cur domain.ReputationEntry, found bool) domain.ReputationEntry {
		if !found {
			cur = domain.NewReputationEntry(now)
		}
		cur = fn(cur)
		cur.LastSeen = now
		return cur.Clamp(t.Policy.MaxViolations)
	})
	if err != nil {
		return fmt.Errorf("reputation %q: %w", string(key), err)
	}
	return nil
}

// Snapshot devolve o estado atual; chave desconhecida vem como cliente novo (score 1.0),
// sem ser criada.
func (t ReputationTracker) Snapshot(key domain.Key) domain.ReputationEntry {
	if e, ok := t.Store.Load(key); ok {
		return e
	}
	return domain.NewReputationEntry(t.now())
}

// EffectiveLimits escala base conforme o score e as violações da chave.
func (t ReputationTracker) EffectiveLimits(key domain.Key, base domain.Params) domain.Params {
	return t.Policy.Scale(t.Snapshot(key), base)
}

// Scale aplica, nesta ordem: faixa de score (bom afrouxa, ruim aperta) e depois
// o multiplicador de violações. Os pisos (5, 10, 60) impedem o limite de zerar.
func (p ReputationPolicy) Scale(e domain.ReputationEntry, base domain.Params) domain.Params {
	maxReq := float64(base.MaxRequests)
	window := float64(base.WindowSeconds)

	switch {
	case e.Score > p.GoodThreshold:
		maxReq = round(maxReq * 1.5)
		window = max(60, round(window*0.8))
	case e.Score < p.BadThreshold:
		maxReq = max(10, round(maxReq*0.5))
		window = round(window * 1.5)
	}

	if v := float64(e.Violations); v > 0 {
		m := max(0.1, 1.0-v*0.2)
		maxReq = max(5, round(maxReq*m))
		window = round(window * (1.0 + v*0.1))
	}

	return domain.Params{MaxRequests: int(maxReq), WindowSeconds: int(window)}
}

// round é arredondamento bancário (meio para o par).
func round(x float64) float64 { return math.RoundToEven(x) }

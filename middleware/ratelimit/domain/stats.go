package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão de admissão já tomada.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key      Key
	Mode     Mode
	Allowed  bool
	FailOpen bool

	Limit     int
	Remaining int
	// Score < 0 quando não há reputação (modo basic ou fail-open).
	Score      float64
	Violations int

	Method string
	Path   string

	At time.Time
	// Elapsed é o tempo gasto na decisão (sem o handler downstream).
	Elapsed time.Duration
}

// EventFromDecision preenche os campos derivados da Decision.
func EventFromDecision(key Key, dec Decision) StatsEvent {
	ev := StatsEvent{
		Key:       key,
		Mode:      dec.Mode,
		Allowed:   dec.Allowed,
		FailOpen:  dec.FailOpen,
		Limit:     dec.Limit,
		Remaining: dec.Remaining,
		Score:     -1,
	}
	if dec.Reputation != nil {
		ev.Score = dec.Reputation.Score
		ev.Violations = dec.Reputation.Violations
	}
	return ev
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// MultiStats repassa o evento para vários stores e devolve o primeiro erro.
type MultiStats []StatsStore

func (m MultiStats) Record(ctx context.Context, ev StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"math"
	"time"
)

type Key string

// Params são os parâmetros de uma janela fixa: no máximo MaxRequests
// requisições a cada WindowSeconds segundos.
type Params struct {
	MaxRequests   int
	WindowSeconds int
}

func (p Params) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

func (p Params) Valid() bool {
	return p.MaxRequests > 0 && p.WindowSeconds > 0
}

// WindowEntry é o contador de uma chave dentro da janela corrente.
//
// MaxRequests/WindowSeconds guardam o limite efetivo aplicado no último acesso.
// O limite pode mudar entre acessos (modo adaptativo) sem zerar Count.
type WindowEntry struct {
	Count         int
	WindowStart   time.Time
	MaxRequests   int
	WindowSeconds int
}

// Expired informa se a janela terminou há mais de `grace` no instante now.
func (e WindowEntry) Expired(now time.Time, grace time.Duration) bool {
	end := e.WindowStart.Add(time.Duration(e.WindowSeconds) * time.Second)
	return now.Sub(end) > grace
}

// WindowStore é o mapa compartilhado chave -> WindowEntry.
//
// Apply executa fn sobre uma cópia da entrada atual (found=false quando não existe)
// e grava o valor retornado. Check + escrita são atômicos por chave: duas chamadas
// concorrentes para a mesma chave nunca se intercalam. now é o instante da
// checagem, usado para validar a entrada encontrada.
type WindowStore interface {
	Apply(key Key, now time.Time, fn func(cur WindowEntry, found bool) WindowEntry) error
}

type Mode string

const (
	ModeBasic    Mode = "basic"
	ModeAdaptive Mode = "adaptive"
)

type Decision struct {
	Allowed       bool
	Remaining     int
	ResetEpoch    int64
	Limit         int
	WindowSeconds int

	Mode Mode
	// FailOpen indica que a decisão não veio do limiter (erro interno ou breaker aberto).
	FailOpen bool
	// Reputation só é preenchido no modo adaptativo.
	Reputation *ReputationEntry
}

// RetryAfterSeconds = max(0, reset - now), em segundos.
func (d Decision) RetryAfterSeconds(now time.Time) int64 {
	return max(0, d.ResetEpoch-now.Unix())
}

// Err devolve um *DeniedError quando a requisição foi negada, senão nil.
func (d Decision) Err(now time.Time) error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{
		Decision:   d,
		RetryAfter: time.Duration(d.RetryAfterSeconds(now)) * time.Second,
	}
}

// ReputationEntry é o histórico de comportamento de uma chave.
type ReputationEntry struct {
	Score      float64
	Violations int
	LastSeen   time.Time
}

// NewReputationEntry é o estado de um cliente nunca visto.
func NewReputationEntry(now time.Time) ReputationEntry {
	return ReputationEntry{Score: 1.0, LastSeen: now}
}

// Clamp mantém Score em [0, 1] e Violations em [0, maxViolations].
func (e ReputationEntry) Clamp(maxViolations int) ReputationEntry {
	if math.IsNaN(e.Score) {
		e.Score = 0
	}
	e.Score = min(1, max(0, e.Score))
	e.Violations = min(maxViolations, max(0, e.Violations))
	return e
}

// ReputationStore segue o mesmo contrato de WindowStore, para ReputationEntry.
// Load não cria a entrada.
type ReputationStore interface {
	Apply(key Key, fn func(cur ReputationEntry, found bool) ReputationEntry) error
	Load(key Key) (ReputationEntry, bool)
}

package infra

import (
	"log/slog"
	"time"
)

// Sweeper é qualquer store que saiba descartar entradas vencidas.
type Sweeper interface {
	Sweep(now time.Time) int
	Len() int
}

type SweepTarget struct {
	Name  string
	Store Sweeper
}

// Janitor limpa periodicamente os stores em memória (as entradas nunca expiram sozinhas).
type Janitor struct {
	Every   time.Duration
	Targets []SweepTarget
	// OnSweep recebe o total de chaves de cada alvo após a limpeza (ex.: gauge Prometheus).
	OnSweep func(name string, keys int)
	Logger  *slog.Logger
	Now     func() time.Time
}

// RunOnce executa uma rodada de limpeza e devolve quantas chaves saíram por alvo.
func (j *Janitor) RunOnce() map[string]int {
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	removed := make(map[string]int, len(j.Targets))
	for _, t := range j.Targets {
		if t.Store == nil {
			continue
		}
		n := t.Store.Sweep(now)
		left := t.Store.Len()
		removed[t.Name] = n
		if j.OnSweep != nil {
			j.OnSweep(t.Name, left)
		}
		logger.Debug("rate limit sweep completed",
			slog.String("store", t.Name),
			slog.Int("keys_removed", n),
			slog.Int("keys_left", left),
		)
	}
	return removed
}

// Start inicia uma goroutine que roda RunOnce a cada Every.
// Pare cancelando o contexto.
func (j *Janitor) Start(ctx DoneContext) {
	if j.Every <= 0 {
		return
	}

	t := time.NewTicker(j.Every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				j.RunOnce()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}

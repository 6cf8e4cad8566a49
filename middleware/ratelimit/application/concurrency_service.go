package application

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService controla as vagas de requisições em voo, sem saber nada sobre HTTP.
//
// AcquireTimeout <= 0 espera até o ctx da requisição encerrar.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	// OnReject recebe a ocupação do pool e o erro quando uma vaga não sai
	// (ex.: contador Prometheus de rejeições).
	OnReject func(inUse int64, err error)
}

// Acquire devolve a função de release da vaga. Com erro, nenhuma vaga foi ocupada
// e errors.Is(err, context.DeadlineExceeded) distingue timeout de cancelamento.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, err := s.Pool.Acquire(ctx)
	if err != nil {
		inUse := s.Pool.InUse()
		if s.OnReject != nil {
			s.OnReject(inUse, err)
		}
		return nil, fmt.Errorf("no concurrency slot (%d in use): %w", inUse, err)
	}
	return release, nil
}

// InUse é o número de vagas ocupadas agora (0 sem pool).
func (s ConcurrencyService) InUse() int64 {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InUse()
}

package infra

import (
	"context"
	"sync"
	"sync/atomic"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/sync/semaphore"
)

type semaphorePool struct {
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// NewSemaphorePool cria um domain.SlotPool com `max` vagas sobre semaphore.Weighted.
// max <= 0 vira 1.
func NewSemaphorePool(max int64) domain.SlotPool {
	if max <= 0 {
		max = 1
	}
	return &semaphorePool{sem: semaphore.NewWeighted(max)}
}

func (p *semaphorePool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.inUse.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.inUse.Add(-1)
			p.sem.Release(1)
		})
	}, nil
}

func (p *semaphorePool) InUse() int64 { return p.inUse.Load() }

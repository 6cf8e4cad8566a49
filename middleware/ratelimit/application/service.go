package application

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Guard envolve a decisão de admissão do limiter (ex.: circuit breaker).
// Com o guard aberto, Do devolve domain.ErrGuardOpen sem chamar fn.
type Guard interface {
	Do(fn func() error) error
}

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Falha do limiter (store corrompido, breaker aberto, panic) nunca chega ao
// pipeline: a requisição é liberada com FailOpen=true e a falha vai para o log.
type Service struct {
	Limiter Admitter
	Guard   Guard
	Clock   func() time.Time
	Logger  *slog.Logger
	// FaultLog limita a frequência dos logs de falha; nil loga todas.
	FaultLog *rate.Sometimes
}

func (s Service) Now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s Service) Mode() domain.Mode {
	if s.Limiter == nil {
		return ""
	}
	return s.Limiter.Mode()
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Limiter == nil {
		return domain.Decision{Allowed: true}
	}

	now := s.Now()
	var (
		dec      domain.Decision
		trackErr error
	)
	err := s.guarded(func() error {
		d, err := s.Limiter.Admit(key, now)
		dec = d
		var te *TrackerError
		if errors.As(err, &te) {
			// a janela respondeu: falha só da reputação não conta para o guard
			trackErr = err
			return nil
		}
		return err
	})
	if err != nil {
		s.fault("rate limiter unavailable, failing open", key, err)
		return domain.Decision{Allowed: true, FailOpen: true, Mode: s.Limiter.Mode()}
	}
	if trackErr != nil {
		s.fault("reputation update failed", key, trackErr)
	}
	return dec
}

// Complete repassa o resultado do handler ao limiter (success = status < 400).
// Roda fora do Guard: o breaker protege só a decisão de admissão.
func (s Service) Complete(key domain.Key, success bool) {
	if s.Limiter == nil {
		return
	}
	if err := recovered(func() error { return s.Limiter.Complete(key, success) }); err != nil {
		s.fault("rate limiter completion failed", key, err)
	}
}

func (s Service) guarded(fn func() error) error {
	if s.Guard == nil {
		return recovered(fn)
	}
	return s.Guard.Do(func() error { return recovered(fn) })
}

func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rate limiter panic: %v", r)
		}
	}()
	return fn()
}

func (s Service) fault(msg string, key domain.Key, err error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := func() {
		logger.Warn(msg,
			slog.String("key", string(key)),
			slog.String("mode", string(s.Limiter.Mode())),
			slog.Any("error", err),
		)
	}
	if s.FaultLog == nil {
		log()
		return
	}
	s.FaultLog.Do(log)
}

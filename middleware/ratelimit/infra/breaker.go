package infra

import (
	"errors"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	Name string
	// ConsecutiveFailures abre o circuito após N falhas seguidas do limiter/store.
	ConsecutiveFailures uint32
	// OpenTimeout é quanto tempo o circuito fica aberto antes do half-open.
	OpenTimeout time.Duration
	// HalfOpenRequests é quantas chamadas de teste passam no half-open.
	HalfOpenRequests uint32

	OnStateChange func(name string, from, to string)
	Logger        *slog.Logger
}

// Breaker protege as checagens do limiter com sony/gobreaker.
//
// Com o circuito aberto, Do não executa fn e devolve domain.ErrGuardOpen;
// quem chama decide o que fazer (o Service libera a requisição: fail-open).
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "ratelimit"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rate limit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from.String(), to.String())
			}
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do implementa application.Guard.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.ErrGuardOpen
	}
	return err
}

func (b *Breaker) State() string { return b.cb.State().String() }

package application

import (
	"errors"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Admitter é o limiter visto pelo Service: decide na entrada e recebe o
// resultado do handler na saída.
type Admitter interface {
	Admit(key domain.Key, now time.Time) (domain.Decision, error)
	Complete(key domain.Key, success bool) error
	Mode() domain.Mode
}

// TrackerError: a decisão foi tomada, mas a reputação não pôde ser atualizada.
type TrackerError struct {
	Key domain.Key
	Err error
}

func (e *TrackerError) Error() string { return "reputation update failed: " + e.Err.Error() }

func (e *TrackerError) Unwrap() error { return e.Err }

// BasicLimiter aplica Params fixos; o score nunca é consultado nem alterado.
type BasicLimiter struct {
	Window FixedWindowLimiter
	Params domain.Params
}

func (l BasicLimiter) Admit(key domain.Key, now time.Time) (domain.Decision, error) {
	dec, err := l.Window.Check(key, l.Params, now)
	if err != nil {
		return domain.Decision{}, err
	}
	dec.Mode = domain.ModeBasic
	return dec, nil
}

func (BasicLimiter) Complete(domain.Key, bool) error { return nil }

func (BasicLimiter) Mode() domain.Mode { return domain.ModeBasic }

// AdaptiveLimiter recalcula o limite da chave pela reputação a cada requisição
// e delega ao FixedWindowLimiter.
//
// O contador é guardado só pela chave: quando o limite efetivo muda (score
// cruzou um limiar), a janela em curso continua com a contagem que já tinha.
type AdaptiveLimiter struct {
	Window  FixedWindowLimiter
	Tracker ReputationTracker
	Base    domain.Params
}

func (l AdaptiveLimiter) Admit(key domain.Key, now time.Time) (domain.Decision, error) {
	eff := l.Tracker.EffectiveLimits(key, l.Base)

	dec, err := l.Window.Check(key, eff, now)
	if err != nil {
		return domain.Decision{}, err
	}
	dec.Mode = domain.ModeAdaptive

	if !dec.Allowed {
		err = l.Tracker.RecordViolation(key)
		if l.Tracker.Policy.PenalizeDenials {
			err = errors.Join(err, l.Tracker.Update(key, false))
		}
	}

	snap := l.Tracker.Snapshot(key)
	dec.Reputation = &snap
	if err != nil {
		// a decisão já foi tomada e continua valendo
		return dec, &TrackerError{Key: key, Err: err}
	}
	return dec, nil
}

func (l AdaptiveLimiter) Complete(key domain.Key, success bool) error {
	return l.Tracker.Update(key, success)
}

func (AdaptiveLimiter) Mode() domain.Mode { return domain.ModeAdaptive }

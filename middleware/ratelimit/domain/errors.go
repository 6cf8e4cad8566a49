package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAdmissionDenied é esperado e recuperável: o cliente deve aguardar RetryAfter.
	ErrAdmissionDenied = errors.New("admission denied")

	// ErrCorruptEntry indica uma entrada inválida no store (ex.: contador negativo).
	// O store descarta a entrada antes de devolver o erro.
	ErrCorruptEntry = errors.New("corrupt rate limit entry")

	// ErrGuardOpen: o circuit breaker do limiter está aberto e a checagem nem rodou.
	ErrGuardOpen = errors.New("rate limit guard open")
)

type DeniedError struct {
	Decision   Decision
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: limit=%d window=%ds retry_after=%s",
		ErrAdmissionDenied, e.Decision.Limit, e.Decision.WindowSeconds, e.RetryAfter)
}

func (e *DeniedError) Unwrap() error { return ErrAdmissionDenied }

// CorruptEntryError carrega a chave afetada; errors.Is(err, ErrCorruptEntry) vale.
type CorruptEntryError struct {
	Key    Key
	Reason string
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrCorruptEntry, string(e.Key), e.Reason)
}

func (e *CorruptEntryError) Unwrap() error { return ErrCorruptEntry }

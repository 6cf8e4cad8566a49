package ratelimit

import (
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão de Max vagas.
	Pool domain.SlotPool
	// OnReject é chamado a cada 503 (ex.: PrometheusStats.ConcurrencyRejected).
	OnReject func(inUse int64, err error)
}

type unavailableBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ConcurrencyMiddleware limita as requisições em voo; sem vaga dentro do
// AcquireTimeout responde 503.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	pool := opts.Pool
	if pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		pool = infra.NewSemaphorePool(int64(opts.Max))
	}

	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
		OnReject:       opts.OnReject,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, unavailableBody{
					Message: "Too many concurrent requests",
					Error:   "SERVICE_BUSY",
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}

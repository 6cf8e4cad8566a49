package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type Options struct {
	// Limiter é application.BasicLimiter ou application.AdaptiveLimiter.
	// nil libera tudo.
	Limiter application.Admitter
	// Guard envolve cada chamada ao Limiter (ex.: infra.Breaker).
	Guard application.Guard
	Stats domain.StatsStore

	KeyFn      KeyFunc
	Identifier IdentifierOptions
	// ExemptPaths nil usa DefaultExemptPaths; slice vazio não isenta nada.
	ExemptPaths []string
	// AddKeyHeader expõe a chave calculada em X-RateLimit-Key (debug).
	AddKeyHeader bool

	Logger *slog.Logger
	Clock  func() time.Time
}

// Middleware aplica o limiter a cada requisição não isenta:
//
//  1. calcula a chave do cliente
//  2. pede a decisão ao application.Service (nunca falha: fail-open)
//  3. negado: 429 com JSON e Retry-After, sem chamar next
//  4. liberado: headers X-RateLimit-*, chama next e devolve status < 400 à reputação
//     (exceto em fail-open)
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.Identifier)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	exempt := newExemptSet(opts.ExemptPaths)

	svc := application.Service{
		Limiter:  opts.Limiter,
		Guard:    opts.Guard,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		FaultLog: &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt.match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := domain.Key(opts.KeyFn(r))
			if opts.AddKeyHeader {
				w.Header().Set("X-RateLimit-Key", string(key))
			}

			started := time.Now()
			dec := svc.Decide(key)
			elapsed := time.Since(started)
			now := svc.Now()

			annotateSpan(r.Context(), key, dec)
			recordStats(r, opts, key, dec, now, elapsed)

			if !dec.Allowed {
				opts.Logger.Debug("request rate limited",
					slog.String("key", string(key)),
					slog.String("mode", string(dec.Mode)),
					slog.Int("limit", dec.Limit),
					slog.Int64("retry_after", dec.RetryAfterSeconds(now)),
				)
				writeDenied(w, dec, now)
				return
			}

			if !dec.FailOpen {
				setRateLimitHeaders(w.Header(), dec)
			}

			if dec.FailOpen {
				// limiter em falha: não há reputação para alimentar
				next.ServeHTTP(w, r)
				return
			}

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			svc.Complete(key, rec.status < http.StatusBadRequest)
		})
	}
}

func recordStats(r *http.Request, opts Options, key domain.Key, dec domain.Decision, now time.Time, elapsed time.Duration) {
	if opts.Stats == nil {
		return
	}
	ev := domain.EventFromDecision(key, dec)
	ev.Method = r.Method
	ev.Path = r.URL.Path
	ev.At = now
	ev.Elapsed = elapsed

	// best-effort: estatística nunca afeta a decisão
	if err := opts.Stats.Record(r.Context(), ev); err != nil {
		opts.Logger.Debug("rate limit stats record failed", slog.Any("error", err))
	}
}

// annotateSpan anota o span ativo (se houver) com a decisão.
func annotateSpan(ctx context.Context, key domain.Key, dec domain.Decision) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ratelimit.key", string(key)),
		attribute.String("ratelimit.mode", string(dec.Mode)),
		attribute.Bool("ratelimit.allowed", dec.Allowed),
		attribute.Bool("ratelimit.fail_open", dec.FailOpen),
		attribute.Int("ratelimit.limit", dec.Limit),
		attribute.Int("ratelimit.remaining", dec.Remaining),
	}
	if rep := dec.Reputation; rep != nil {
		attrs = append(attrs,
			attribute.Float64("ratelimit.client_score", rep.Score),
			attribute.Int("ratelimit.violations", rep.Violations),
		)
	}
	span.SetAttributes(attrs...)

	if !dec.Allowed {
		span.AddEvent("ratelimit.denied")
	}
}

package infra

import (
	"context"
	"errors"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats é um domain.StatsStore que exporta as decisões como métricas.
//
// Usa um registry próprio (não o global) para isolar testes e permitir
// várias instâncias no mesmo processo. Exponha com promhttp.HandlerFor(Registry(), ...).
//
// Key e Path não viram label de propósito (cardinalidade).
type PrometheusStats struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	clientScore   prometheus.Histogram
	trackedKeys   *prometheus.GaugeVec
	breakerState  *prometheus.GaugeVec

	concurrencyRejected *prometheus.CounterVec
	concurrencyInUse    prometheus.Gauge
}

func NewPrometheusStats() *PrometheusStats {
	registry := prometheus.NewRegistry()

	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Admission decisions by limiter mode and result (allowed, denied, fail_open)",
		},
		[]string{"mode", "result"},
	)
	checkDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admission_check_duration_seconds",
			Help:    "Time spent deciding admission, downstream handler excluded",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"mode"},
	)
	clientScore := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "admission_client_score",
		Help:    "Reputation score of clients at decision time (adaptive mode)",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})
	trackedKeys := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admission_tracked_keys",
			Help: "Keys currently held by each in-memory store",
		},
		[]string{"store"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admission_breaker_state",
			Help: "Limiter circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)

	concurrencyRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_concurrency_rejected_total",
			Help: "Requests answered 503 for lack of a concurrency slot, by reason (timeout, canceled)",
		},
		[]string{"reason"},
	)
	concurrencyInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "admission_concurrency_in_use",
		Help: "Concurrency slots in use at the last rejection",
	})

	registry.MustRegister(decisions, checkDuration, clientScore, trackedKeys, breakerState,
		concurrencyRejected, concurrencyInUse)

	return &PrometheusStats{
		registry:      registry,
		decisions:     decisions,
		checkDuration: checkDuration,
		clientScore:   clientScore,
		trackedKeys:   trackedKeys,
		breakerState:  breakerState,

		concurrencyRejected: concurrencyRejected,
		concurrencyInUse:    concurrencyInUse,
	}
}

func (m *PrometheusStats) Registry() *prometheus.Registry { return m.registry }

// Record implementa domain.StatsStore. Nunca falha.
func (m *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	mode := string(ev.Mode)
	if mode == "" {
		mode = "unknown"
	}

	result := "denied"
	switch {
	case ev.FailOpen:
		result = "fail_open"
	case ev.Allowed:
		result = "allowed"
	}
	m.decisions.WithLabelValues(mode, result).Inc()

	if ev.Elapsed > 0 {
		m.checkDuration.WithLabelValues(mode).Observe(ev.Elapsed.Seconds())
	}
	if ev.Score >= 0 {
		m.clientScore.Observe(ev.Score)
	}
	return nil
}

// SetTrackedKeys tem a assinatura de Janitor.OnSweep.
func (m *PrometheusStats) SetTrackedKeys(store string, keys int) {
	m.trackedKeys.WithLabelValues(store).Set(float64(keys))
}

// SetBreakerState tem a assinatura de BreakerConfig.OnStateChange.
func (m *PrometheusStats) SetBreakerState(name, _, to string) {
	var v float64
	switch to {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	m.breakerState.WithLabelValues(name).Set(v)
}

// ConcurrencyRejected tem a assinatura de ConcurrencyOptions.OnReject.
func (m *PrometheusStats) ConcurrencyRejected(inUse int64, err error) {
	reason := "canceled"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	m.concurrencyRejected.WithLabelValues(reason).Inc()
	m.concurrencyInUse.Set(float64(inUse))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var extraStats []domain.StatsStore
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		extraStats = append(extraStats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		))
	}

	gw, err := newGateway(cfg, logger, extraStats...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	gw.janitor.Start(gctx)

	g.Go(func() error {
		logger.Info("gateway listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("upstream", cfg.UpstreamURL),
			slog.Bool("rate_limit", cfg.RateLimit.Enabled),
			slog.String("mode", cfg.RateLimit.Mode),
			slog.Int("max_requests", cfg.RateLimit.MaxRequests),
			slog.Int("window_seconds", cfg.RateLimit.WindowSeconds),
			slog.Int("concurrency_max", cfg.Concurrency.Max),
			slog.Bool("redis_stats", cfg.Stats.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type gateway struct {
	handler http.Handler
	janitor *infra.Janitor
	metrics *infra.PrometheusStats
	limiter application.Admitter
}

// newGateway monta proxy + middlewares + endpoints operacionais. Não abre portas.
func newGateway(cfg config, logger *slog.Logger, extraStats ...domain.StatsStore) (*gateway, error) {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	metrics := infra.NewPrometheusStats()
	metrics.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rl := cfg.RateLimit
	windows := infra.NewWindowStore(infra.WithShards(rl.Shards), infra.WithRetention(rl.Retention))
	janitor := &infra.Janitor{
		Every:   rl.SweepEvery,
		Targets: []infra.SweepTarget{{Name: "window", Store: windows}},
		OnSweep: metrics.SetTrackedKeys,
		Logger:  logger,
	}

	base := domain.Params{MaxRequests: rl.MaxRequests, WindowSeconds: rl.WindowSeconds}
	fixed := application.FixedWindowLimiter{Store: windows}

	var limiter application.Admitter = application.BasicLimiter{Window: fixed, Params: base}
	if domain.Mode(rl.Mode) == domain.ModeAdaptive {
		reputations := infra.NewReputationStore(infra.WithShards(rl.Shards), infra.WithRetention(rl.ReputationRetention))
		janitor.Targets = append(janitor.Targets, infra.SweepTarget{Name: "reputation", Store: reputations})

		policy := application.DefaultReputationPolicy()
		policy.GoodThreshold = rl.GoodThreshold
		policy.BadThreshold = rl.BadThreshold
		policy.MaxViolations = rl.MaxViolations
		policy.PenalizeDenials = rl.PenalizeDenials
		if err := policy.Validate(); err != nil {
			return nil, err
		}

		limiter = application.AdaptiveLimiter{
			Window:  fixed,
			Tracker: application.ReputationTracker{Store: reputations, Policy: policy},
			Base:    base,
		}
	}

	breaker := infra.NewBreaker(infra.BreakerConfig{
		Name:                "ratelimit",
		ConsecutiveFailures: uint32(cfg.Breaker.Failures),
		OpenTimeout:         cfg.Breaker.OpenTimeout,
		OnStateChange:       metrics.SetBreakerState,
		Logger:              logger,
	})

	upstream := ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		AcquireTimeout: cfg.Concurrency.Timeout,
		OnReject:       metrics.ConcurrencyRejected,
	})(proxy)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	for _, p := range []string{"/healthz", "/livez"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "ok\n")
		})
	}
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if breaker.State() == "open" {
			// o limiter está em fail-open, mas o tráfego continua fluindo
			_, _ = io.WriteString(w, "ok (rate limiter degraded)\n")
			return
		}
		_, _ = io.WriteString(w, "ok\n")
	})
	mux.Handle("/", upstream)

	h := http.Handler(mux)
	if rl.Enabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Limiter: limiter,
			Guard:   breaker,
			Stats:   append(domain.MultiStats{metrics}, extraStats...),
			Identifier: ratelimit.IdentifierOptions{
				IgnoreXForwardedFor: !rl.TrustXFF,
				APIKeyHeader:        rl.APIKeyHeader,
				FoldAPIKey:          rl.FoldAPIKey,
				PreferAPIKey:        rl.PreferAPIKey,
			},
			ExemptPaths:  rl.ExemptPaths,
			AddKeyHeader: rl.AddKeyHeader,
			Logger:       logger,
		})(h)
	}

	return &gateway{handler: h, janitor: janitor, metrics: metrics, limiter: limiter}, nil
}

func newLogger(w io.Writer, cfg logConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

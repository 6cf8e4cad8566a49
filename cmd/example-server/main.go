package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/gorilla/mux"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	windows := infra.NewWindowStore()
	reputations := infra.NewReputationStore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	janitor := &infra.Janitor{
		Every: time.Minute,
		Targets: []infra.SweepTarget{
			{Name: "window", Store: windows},
			{Name: "reputation", Store: reputations},
		},
		Logger: logger,
	}
	janitor.Start(ctx)

	limiter := application.AdaptiveLimiter{
		Window: application.FixedWindowLimiter{Store: windows},
		Tracker: application.ReputationTracker{
			Store:  reputations,
			Policy: application.DefaultReputationPolicy(),
		},
		Base: domain.Params{MaxRequests: 10, WindowSeconds: 60},
	}
	stats := infra.NewMemoryStatsStore()

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["id"] == "broken" {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("item " + mux.Vars(r)["id"] + "\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		t := stats.Total()
		logger.Info("stats", slog.Int64("allowed", t.Allowed), slog.Int64("denied", t.Denied), slog.Int64("fail_open", t.FailOpen))
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	r.Use(ratelimit.Middleware(ratelimit.Options{
		Limiter: limiter,
		Stats:   stats,
		Identifier: ratelimit.IdentifierOptions{
			APIKeyHeader: "X-Api-Key",
			PreferAPIKey: true,
		},
		AddKeyHeader: true,
		Logger:       logger,
	}))
	r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50}))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

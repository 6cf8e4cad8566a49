package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:8081")

	cfg, err := readConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "adaptive", cfg.RateLimit.Mode)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 60, cfg.RateLimit.WindowSeconds)
	assert.Equal(t, 0.7, cfg.RateLimit.GoodThreshold)
	assert.Equal(t, 0.3, cfg.RateLimit.BadThreshold)
	assert.Equal(t, 5, cfg.RateLimit.MaxViolations)
	assert.False(t, cfg.RateLimit.PenalizeDenials)
	assert.Equal(t, ratelimit.DefaultExemptPaths, cfg.RateLimit.ExemptPaths)
	cfg.RateLimit.ExemptPaths[0] = "/changed"
	assert.Equal(t, "/healthz", ratelimit.DefaultExemptPaths[0], "defaults must not alias the library list")
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.SweepEvery)
	assert.Equal(t, 100, cfg.Concurrency.Max)
}

func TestReadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:8081")
	t.Setenv("RATE_LIMIT_MODE", "basic")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "10")
	t.Setenv("EXEMPT_PATHS", " /status , /ping ,")
	t.Setenv("DENIAL_PENALIZES_SCORE", "true")
	t.Setenv("RATE_LIMIT_SWEEP_EVERY", "30s")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "not-a-number")

	cfg, err := readConfig()
	require.NoError(t, err)

	assert.Equal(t, "basic", cfg.RateLimit.Mode)
	assert.Equal(t, 10, cfg.RateLimit.MaxRequests)
	assert.Equal(t, []string{"/status", "/ping"}, cfg.RateLimit.ExemptPaths)
	assert.True(t, cfg.RateLimit.PenalizeDenials)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.SweepEvery)
	// valor inválido mantém o padrão
	assert.Equal(t, 60, cfg.RateLimit.WindowSeconds)
}

func TestReadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	yml := `
upstream_url: http://upstream:9000
rate_limit:
  mode: basic
  max_requests: 42
  sweep_every: 1m
breaker:
  failures: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "7")

	cfg, err := readConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://upstream:9000", cfg.UpstreamURL)
	assert.Equal(t, "basic", cfg.RateLimit.Mode)
	assert.Equal(t, 7, cfg.RateLimit.MaxRequests, "env wins over file")
	assert.Equal(t, time.Minute, cfg.RateLimit.SweepEvery)
	assert.Equal(t, 3, cfg.Breaker.Failures)
	// campos ausentes no arquivo mantêm o padrão
	assert.Equal(t, 60, cfg.RateLimit.WindowSeconds)
}

func TestReadConfig_Validation(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	_, err := readConfig()
	assert.ErrorContains(t, err, "UPSTREAM_URL is required")

	t.Setenv("UPSTREAM_URL", "http://localhost:8081")
	t.Setenv("RATE_LIMIT_MODE", "turbo")
	t.Setenv("BAD_BEHAVIOR_THRESHOLD", "0.9")
	t.Setenv("RATE_STATS_ENABLED", "true")

	_, err = readConfig()
	require.Error(t, err)
	assert.ErrorContains(t, err, "RATE_LIMIT_MODE")
	assert.ErrorContains(t, err, "thresholds")
	assert.ErrorContains(t, err, "RATE_STATS_REDIS_ADDR")
}

func TestReadConfig_BadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := readConfig()
	assert.ErrorContains(t, err, "read config file")
}

package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit"

	"gopkg.in/yaml.v3"
)

// config do gateway. Ordem de precedência: padrões < CONFIG_FILE (YAML) < variáveis de ambiente.
type config struct {
	ListenAddr  string    `yaml:"listen_addr"`
	UpstreamURL string    `yaml:"upstream_url"`
	Log         logConfig `yaml:"log"`

	RateLimit   rateLimitConfig   `yaml:"rate_limit"`
	Breaker     breakerConfig     `yaml:"breaker"`
	Concurrency concurrencyConfig `yaml:"concurrency"`
	Stats       statsConfig       `yaml:"stats"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type rateLimitConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Mode          string   `yaml:"mode"`
	MaxRequests   int      `yaml:"max_requests"`
	WindowSeconds int      `yaml:"window_seconds"`
	ExemptPaths   []string `yaml:"exempt_paths"`

	GoodThreshold   float64 `yaml:"good_behavior_threshold"`
	BadThreshold    float64 `yaml:"bad_behavior_threshold"`
	MaxViolations   int     `yaml:"max_violations"`
	PenalizeDenials bool    `yaml:"denial_penalizes_score"`

	TrustXFF     bool   `yaml:"trust_xff"`
	APIKeyHeader string `yaml:"api_key_header"`
	FoldAPIKey   bool   `yaml:"fold_api_key"`
	PreferAPIKey bool   `yaml:"prefer_api_key"`
	AddKeyHeader bool   `yaml:"add_key_header"`

	Shards              int           `yaml:"shards"`
	SweepEvery          time.Duration `yaml:"sweep_every"`
	Retention           time.Duration `yaml:"retention"`
	ReputationRetention time.Duration `yaml:"reputation_retention"`
}

type breakerConfig struct {
	Failures    int           `yaml:"failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

type concurrencyConfig struct {
	Max     int           `yaml:"max"`
	Timeout time.Duration `yaml:"timeout"`
}

type statsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"`
	TrackKeys     bool          `yaml:"track_keys"`
}

func defaultConfig() config {
	return config{
		ListenAddr: ":8080",
		Log:        logConfig{Level: "info", Format: "json"},
		RateLimit: rateLimitConfig{
			Enabled:             true,
			Mode:                "adaptive",
			MaxRequests:         100,
			WindowSeconds:       60,
			ExemptPaths:         slices.Clone(ratelimit.DefaultExemptPaths),
			GoodThreshold:       0.7,
			BadThreshold:        0.3,
			MaxViolations:       5,
			TrustXFF:            true,
			APIKeyHeader:        "X-API-Key",
			FoldAPIKey:          true,
			Shards:              64,
			SweepEvery:          5 * time.Minute,
			Retention:           24 * time.Hour,
			ReputationRetention: 24 * time.Hour,
		},
		Breaker:     breakerConfig{Failures: 5, OpenTimeout: 30 * time.Second},
		Concurrency: concurrencyConfig{Max: 100},
		Stats: statsConfig{
			Prefix: "ratelimit:stats",
			TTL:    24 * time.Hour,
			Bucket: "minute",
		},
	}
}

func readConfig() (config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv sobrescreve cfg com as variáveis definidas; o valor atual é o padrão.
func applyEnv(cfg *config) {
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	rl := &cfg.RateLimit
	rl.Enabled = getenvBoolDefault("RATE_LIMIT_ENABLED", rl.Enabled)
	rl.Mode = getenvDefault("RATE_LIMIT_MODE", rl.Mode)
	rl.MaxRequests = getenvIntDefault("RATE_LIMIT_MAX_REQUESTS", rl.MaxRequests)
	rl.WindowSeconds = getenvIntDefault("RATE_LIMIT_WINDOW_SECONDS", rl.WindowSeconds)
	if v, ok := os.LookupEnv("EXEMPT_PATHS"); ok {
		rl.ExemptPaths = splitList(v)
	}
	rl.GoodThreshold = getenvFloatDefault("GOOD_BEHAVIOR_THRESHOLD", rl.GoodThreshold)
	rl.BadThreshold = getenvFloatDefault("BAD_BEHAVIOR_THRESHOLD", rl.BadThreshold)
	rl.MaxViolations = getenvIntDefault("MAX_VIOLATIONS", rl.MaxViolations)
	rl.PenalizeDenials = getenvBoolDefault("DENIAL_PENALIZES_SCORE", rl.PenalizeDenials)
	rl.TrustXFF = getenvBoolDefault("TRUST_XFF", rl.TrustXFF)
	rl.APIKeyHeader = getenvDefault("API_KEY_HEADER", rl.APIKeyHeader)
	rl.FoldAPIKey = getenvBoolDefault("FOLD_API_KEY", rl.FoldAPIKey)
	rl.PreferAPIKey = getenvBoolDefault("PREFER_API_KEY", rl.PreferAPIKey)
	rl.AddKeyHeader = getenvBoolDefault("ADD_RATELIMIT_KEY_HEADER", rl.AddKeyHeader)
	rl.Shards = getenvIntDefault("RATE_LIMIT_SHARDS", rl.Shards)
	rl.SweepEvery = getenvDurationDefault("RATE_LIMIT_SWEEP_EVERY", rl.SweepEvery)
	rl.Retention = getenvDurationDefault("RATE_LIMIT_RETENTION", rl.Retention)
	rl.ReputationRetention = getenvDurationDefault("REPUTATION_RETENTION", rl.ReputationRetention)

	cfg.Breaker.Failures = getenvIntDefault("BREAKER_FAILURES", cfg.Breaker.Failures)
	cfg.Breaker.OpenTimeout = getenvDurationDefault("BREAKER_OPEN_TIMEOUT", cfg.Breaker.OpenTimeout)

	cfg.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", cfg.Concurrency.Max)
	cfg.Concurrency.Timeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.Concurrency.Timeout)

	st := &cfg.Stats
	st.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", st.Enabled)
	st.RedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", st.RedisAddr)
	st.RedisPassword = getenvDefault("RATE_STATS_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", st.RedisDB)
	st.Prefix = getenvDefault("RATE_STATS_PREFIX", st.Prefix)
	st.TTL = getenvDurationDefault("RATE_STATS_TTL", st.TTL)
	st.Bucket = getenvDefault("RATE_STATS_BUCKET", st.Bucket)
	st.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", st.TrackKeys)
}

func (c config) validate() error {
	var errs []error
	if c.UpstreamURL == "" {
		errs = append(errs, errors.New("UPSTREAM_URL is required"))
	}
	rl := c.RateLimit
	switch rl.Mode {
	case "basic", "adaptive":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MODE must be basic or adaptive, got %q", rl.Mode))
	}
	if rl.MaxRequests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_REQUESTS must be > 0"))
	}
	if rl.WindowSeconds <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW_SECONDS must be > 0"))
	}
	if rl.GoodThreshold < 0 || rl.GoodThreshold > 1 || rl.BadThreshold < 0 || rl.BadThreshold > rl.GoodThreshold {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 <= bad <= good <= 1 (bad=%v good=%v)", rl.BadThreshold, rl.GoodThreshold))
	}
	if rl.MaxViolations < 0 {
		errs = append(errs, errors.New("MAX_VIOLATIONS must be >= 0"))
	}
	if rl.Shards <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_SHARDS must be > 0"))
	}
	if c.Breaker.Failures <= 0 {
		errs = append(errs, errors.New("BREAKER_FAILURES must be > 0"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

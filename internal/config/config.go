package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv           string
	BackendBaseURL   string
	BackendTimeout   time.Duration
	RetryMaxAttempts int
	RetryBaseBackoff time.Duration
	BreakerMinReqs   int
	BreakerRatio     float64
	BreakerOpenFor   time.Duration
	RedisURL         string
	CacheTTL         time.Duration
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
}

// Load reads configuration from environment variables and an optional .env
// file. BACKEND_BASE_URL is the only required key; the Redis cache is optional.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:           valueOrDefault(k.String("APP_ENV"), "development"),
		BackendBaseURL:   strings.TrimSpace(k.String("BACKEND_BASE_URL")),
		BackendTimeout:   parseDuration(k.String("BACKEND_TIMEOUT"), "10s"),
		RetryMaxAttempts: intOrDefault(k.Int("BACKEND_RETRY_MAX_ATTEMPTS"), 3),
		RetryBaseBackoff: parseDuration(k.String("BACKEND_RETRY_BASE_BACKOFF"), "200ms"),
		BreakerMinReqs:   intOrDefault(k.Int("BACKEND_BREAKER_MIN_REQUESTS"), 10),
		BreakerRatio:     floatOrDefault(k.Float64("BACKEND_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:   parseDuration(k.String("BACKEND_BREAKER_OPEN_FOR"), "30s"),
		RedisURL:         strings.TrimSpace(k.String("REDIS_URL")),
		CacheTTL:         parseDuration(k.String("CACHE_TTL"), "5m"),
		LogFormat:        valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "pos"),
	}

	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}

	return cfg, nil
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func floatOrDefault(value, fallback float64) float64 {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for command
// entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests overrides environment variables for the duration of a Load and
// restores them afterwards.
func LoadForTests(overrides map[string]string) (*Config, error) {
	original := make(map[string]string, len(overrides))
	for key := range overrides {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, overrides[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

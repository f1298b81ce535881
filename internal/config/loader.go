package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "hooktrace.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HOOKTRACE_PORT")
	setString(&cfg.Server.CORSOrigin, "HOOKTRACE_CORS_ORIGIN")
	setString(&cfg.Storage.Backend, "HOOKTRACE_STORAGE_BACKEND")
	setInt(&cfg.Storage.MaxEvents, "HOOKTRACE_STORAGE_MAX_EVENTS")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HOOKTRACE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HOOKTRACE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "HOOKTRACE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "HOOKTRACE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "HOOKTRACE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.NATS.PublishTimeout, "HOOKTRACE_NATS_PUBLISH_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "HOOKTRACE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "HOOKTRACE_CACHE_TTL")
	setString(&cfg.Ingest.DefaultTeam, "HOOKTRACE_DEFAULT_TEAM")
	setString(&cfg.Ingest.APIKey, "HOOKTRACE_API_KEY")
	setBool(&cfg.Ingest.AnonymizeUsers, "HOOKTRACE_ANONYMIZE_USERS")
	setString(&cfg.Logging.Level, "HOOKTRACE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HOOKTRACE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HOOKTRACE_LOG_ASYNC")
	setFloat64(&cfg.Rate.RequestsPerSecond, "HOOKTRACE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "HOOKTRACE_RATE_BURST")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Backend {
	case "memory":
		if cfg.Storage.MaxEvents < 1 {
			return errors.New("storage.max_events must be >= 1")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or postgres, got %q", cfg.Storage.Backend)
	}
	if cfg.Ingest.DefaultTeam == "" {
		return errors.New("ingest.default_team is required")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Cache.TTL < 0 {
		return errors.New("cache.ttl must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

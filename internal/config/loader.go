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
const DefaultConfigFile = "flowspace.yaml"

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
	setString(&cfg.Server.Port, "FLOWSPACE_PORT")
	setString(&cfg.Server.CORSOrigin, "FLOWSPACE_CORS_ORIGIN")
	setDuration(&cfg.Server.ShutdownTimeout, "FLOWSPACE_SHUTDOWN_TIMEOUT")
	setString(&cfg.Storage.Driver, "FLOWSPACE_STORAGE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FLOWSPACE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FLOWSPACE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FLOWSPACE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FLOWSPACE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FLOWSPACE_PG_HEALTH_CHECK")

	setBool(&cfg.Redis.Enabled, "FLOWSPACE_REDIS_ENABLED")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setBool(&cfg.NATS.Enabled, "FLOWSPACE_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.SubjectPrefix, "FLOWSPACE_NATS_PREFIX")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "FLOWSPACE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "FLOWSPACE_CACHE_L1_TTL")
	setDuration(&cfg.Cache.MembershipTTL, "FLOWSPACE_CACHE_MEMBERSHIP_TTL")
	setDuration(&cfg.Cache.BoardTTL, "FLOWSPACE_CACHE_BOARD_TTL")

	// Auth
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.Issuer, "FLOWSPACE_JWT_ISSUER")
	setString(&cfg.Auth.Audience, "FLOWSPACE_JWT_AUDIENCE")
	setDuration(&cfg.Auth.TokenExpiry, "FLOWSPACE_TOKEN_EXPIRY")
	setInt(&cfg.Auth.BcryptCost, "FLOWSPACE_BCRYPT_COST")
	setString(&cfg.Auth.JWKSURL, "FLOWSPACE_JWKS_URL")

	// Realtime
	setInt(&cfg.Realtime.SendBuffer, "FLOWSPACE_WS_SEND_BUFFER")
	setDuration(&cfg.Realtime.WriteTimeout, "FLOWSPACE_WS_WRITE_TIMEOUT")
	setDuration(&cfg.Realtime.PingInterval, "FLOWSPACE_WS_PING_INTERVAL")
	setInt64(&cfg.Realtime.MaxMessageSize, "FLOWSPACE_WS_MAX_MESSAGE_SIZE")
	setString(&cfg.Realtime.PresenceMode, "FLOWSPACE_PRESENCE_MODE")

	setString(&cfg.Logging.Level, "FLOWSPACE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FLOWSPACE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FLOWSPACE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "FLOWSPACE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FLOWSPACE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "FLOWSPACE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "FLOWSPACE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "FLOWSPACE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "FLOWSPACE_RATE_MAX_IDLE_TIME")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "FLOWSPACE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "FLOWSPACE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "FLOWSPACE_OTEL_SAMPLE_RATE")

	setDuration(&cfg.Notifications.Retention, "FLOWSPACE_NOTIFICATION_RETENTION")
	setString(&cfg.Notifications.SweepSchedule, "FLOWSPACE_NOTIFICATION_SWEEP")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
	if cfg.Redis.Enabled && cfg.Redis.URL == "" {
		return errors.New("redis.url is required when redis is enabled")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.Auth.TokenExpiry <= 0 {
		return errors.New("auth.token_expiry must be positive")
	}
	if cfg.Realtime.SendBuffer < 1 {
		return errors.New("realtime.send_buffer must be >= 1")
	}
	if cfg.Realtime.PresenceMode != "multi" && cfg.Realtime.PresenceMode != "last_write_wins" {
		return fmt.Errorf("realtime.presence_mode %q is not supported", cfg.Realtime.PresenceMode)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

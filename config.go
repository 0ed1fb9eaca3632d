package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/PKBEATS21/compat-study-find/store"
)

// devJWTSecret is only accepted outside production.
const devJWTSecret = "your_secret_key_please_change_in_production"

const configPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server    ServerConfig          `koanf:"server"`
	Database  DatabaseConfig        `koanf:"database"`
	Auth      AuthConfig            `koanf:"auth"`
	CORS      CORSConfig            `koanf:"cors"`
	RateLimit RateLimitConfig       `koanf:"rate_limit"`
	Live      LiveConfig            `koanf:"live"`
	Breaker   store.BreakerSettings `koanf:"breaker"`
	Log       LogConfig             `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	Environment     string        `koanf:"environment" validate:"oneof=development test production"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
}

type DatabaseConfig struct {
	Driver       string `koanf:"driver" validate:"oneof=postgres sqlite"`
	URL          string `koanf:"url" validate:"required_if=Driver postgres"`
	SQLitePath   string `koanf:"sqlite_path" validate:"required_if=Driver sqlite"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"min=1"`
	Migrate      bool   `koanf:"migrate"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"required"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins" validate:"min=1"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests" validate:"min=1"`
	Window   time.Duration `koanf:"window" validate:"min=1s"`
}

type LiveConfig struct {
	Enabled         bool          `koanf:"enabled"`
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"min=1s"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Environment:     "development",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			URL:          "user=admin password=password dbname=studymatch sslmode=disable",
			SQLitePath:   "studymatch.db",
			MaxOpenConns: 10,
			Migrate:      true,
		},
		Auth: AuthConfig{JWTSecret: devJWTSecret},
		CORS: CORSConfig{AllowedOrigins: []string{
			"http://localhost:5173", "http://127.0.0.1:5173",
			"http://localhost:3001", "http://127.0.0.1:3001",
		}},
		RateLimit: RateLimitConfig{Requests: 60, Window: time.Minute},
		Live:      LiveConfig{Enabled: true, RefreshInterval: 30 * time.Second},
		Breaker: store.BreakerSettings{
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			MinRequests:  10,
			FailureRatio: 0.6,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// envMappings lists every environment variable the service reads. Anything
// else in the environment is ignored.
var envMappings = map[string]string{
	"LISTEN_ADDR":             "server.addr",
	"GO_ENV":                  "server.environment",
	"SHUTDOWN_TIMEOUT":        "server.shutdown_timeout",
	"DATABASE_DRIVER":         "database.driver",
	"DATABASE_URL":            "database.url",
	"SQLITE_PATH":             "database.sqlite_path",
	"DATABASE_MAX_OPEN_CONNS": "database.max_open_conns",
	"DATABASE_MIGRATE":        "database.migrate",
	"JWT_SECRET":              "auth.jwt_secret",
	"CORS_ALLOWED_ORIGINS":    "cors.allowed_origins",
	"RATE_LIMIT_REQUESTS":     "rate_limit.requests",
	"RATE_LIMIT_WINDOW":       "rate_limit.window",
	"LIVE_ENABLED":            "live.enabled",
	"LIVE_REFRESH_INTERVAL":   "live.refresh_interval",
	"BREAKER_MAX_REQUESTS":    "breaker.max_requests",
	"BREAKER_INTERVAL":        "breaker.interval",
	"BREAKER_TIMEOUT":         "breaker.timeout",
	"BREAKER_MIN_REQUESTS":    "breaker.min_requests",
	"BREAKER_FAILURE_RATIO":   "breaker.failure_ratio",
	"LOG_LEVEL":               "log.level",
	"LOG_FORMAT":              "log.format",
	"LOG_CALLER":              "log.caller",
}

func envKey(key string) string {
	return envMappings[key]
}

var sliceConfigPaths = []string{"cors.allowed_origins"}

// loadConfig layers struct defaults, an optional YAML file and the mapped
// environment variables, in that order.
func loadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(configPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// splitSliceFields turns comma separated env values into lists.
func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Server.Environment == "production" && c.Auth.JWTSecret == devJWTSecret {
		return errors.New("auth.jwt_secret must be set in production")
	}
	return nil
}

func (c *Config) devSecret() bool {
	return c.Auth.JWTSecret == devJWTSecret
}

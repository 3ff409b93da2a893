// Package config provides configuration loading and management using koanf.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults applied before any file or environment variable.
const (
	DefaultServerPort     = 8080
	DefaultMaxRequestSize = 1 << 20

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28

	DefaultRollbackPolicy    = "any"
	DefaultMaxNestingDepth   = 8
	DefaultConcurrency       = 4
	DefaultProcessingTimeout = 30 * time.Second

	DefaultListLimit = 50

	DefaultRelayTimeout     = 5 * time.Second
	DefaultRelayMaxAttempts = 3
	DefaultRelayMaxFailures = 5
)

// envDelimiter separates nesting levels in environment variable names, so
// that APP_PROCESSING__MAX_NESTING_DEPTH maps to processing.max_nesting_depth.
const envDelimiter = "__"

// Config is the root configuration structure.
type Config struct {
	App        AppConfig        `koanf:"app"        validate:"required"`
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Log        LogConfig        `koanf:"log"        validate:"required"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Processing ProcessingConfig `koanf:"processing" validate:"required"`
	Storage    StorageConfig    `koanf:"storage"    validate:"required"`
	Relay      RelayConfig      `koanf:"relay"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`

	// HealthCheckTimeout bounds each readiness check.
	HealthCheckTimeout time.Duration `koanf:"health_check_timeout" validate:"omitempty,min=10ms"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// ProcessingConfig controls how messages are processed under units of work.
type ProcessingConfig struct {
	// RollbackPolicy names the policy applied to handler failures.
	RollbackPolicy string `koanf:"rollback_policy" validate:"required,oneof=any never panic"`

	// MaxNestingDepth limits nested units of work. Zero disables the limit.
	MaxNestingDepth int `koanf:"max_nesting_depth" validate:"min=0,max=64"`

	// Concurrency is the number of messages of a batch processed in parallel.
	Concurrency int `koanf:"concurrency" validate:"required,min=1,max=256"`

	// Timeout bounds a single message. Zero disables the deadline.
	Timeout time.Duration `koanf:"timeout" validate:"min=0s"`
}

// StorageConfig contains outbox storage settings.
type StorageConfig struct {
	// Path is the SQLite database file. ":memory:" keeps the outbox in memory.
	Path string `koanf:"path" validate:"required"`

	// ListLimit caps the number of outbox entries returned by one listing.
	ListLimit int `koanf:"list_limit" validate:"required,min=1,max=1000"`
}

// RelayConfig controls forwarding of committed events to a webhook.
type RelayConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"     validate:"required_if=Enabled true,omitempty,url"`
	Timeout time.Duration `koanf:"timeout" validate:"required_if=Enabled true,omitempty,min=100ms"`
	Retry   RetryConfig   `koanf:"retry"`
	Circuit CircuitConfig `koanf:"circuit"`
}

// RetryConfig controls exponential backoff between delivery attempts.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"omitempty,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"omitempty,min=1ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"omitempty,gtefield=InitialInterval"`
	Multiplier      float64       `koanf:"multiplier"       validate:"omitempty,min=1,max=10"`
}

// CircuitConfig controls the circuit breaker guarding the webhook.
type CircuitConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"omitempty,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"omitempty,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"omitempty,min=1"`
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "msgflow",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":                 DefaultServerPort,
		"server.host":                 "0.0.0.0",
		"server.read_timeout":         "30s",
		"server.write_timeout":        "30s",
		"server.idle_timeout":         "120s",
		"server.shutdown_timeout":     "10s",
		"server.max_request_size":     DefaultMaxRequestSize,
		"server.health_check_timeout": "2s",

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/msgflow.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "msgflow",
		"telemetry.sampling_rate": 1.0,

		"processing.rollback_policy":   DefaultRollbackPolicy,
		"processing.max_nesting_depth": DefaultMaxNestingDepth,
		"processing.concurrency":       DefaultConcurrency,
		"processing.timeout":           DefaultProcessingTimeout.String(),

		"storage.path":       "./data/msgflow.db",
		"storage.list_limit": DefaultListLimit,

		"relay.enabled":                 false,
		"relay.url":                     "",
		"relay.timeout":                 DefaultRelayTimeout.String(),
		"relay.retry.max_attempts":      DefaultRelayMaxAttempts,
		"relay.retry.initial_interval":  "100ms",
		"relay.retry.max_interval":      "2s",
		"relay.retry.multiplier":        2.0,
		"relay.circuit.max_failures":    DefaultRelayMaxFailures,
		"relay.circuit.timeout":         "30s",
		"relay.circuit.half_open_limit": 1,
	}
}

// Load layers, lowest precedence first, the defaults, configs/base.yaml,
// configs/<profile>.yaml and APP_ environment variables. Missing files are
// skipped. The result is not validated; call Validate.
func Load(profile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	files := []string{filepath.Join("configs", "base.yaml")}
	if profile != "" {
		files = append(files, filepath.Join("configs", profile+".yaml"))
	}
	for _, path := range files {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("APP_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := new(Config)
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// envKey maps APP_LOG__FILE__MAX_SIZE to log.file.max_size.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, "APP_"))
	return strings.ReplaceAll(name, envDelimiter, ".")
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates application configuration. Values come from an optional
// YAML file, then environment variables (TREASURY_*), then flag overrides
// applied by the binaries.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BigQueryConfig describes the payment store. An empty Project selects the
// in-memory backend, which is only suitable for local development.
type BigQueryConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

// StorageConfig describes the proof-of-payment blob store. An empty Bucket
// selects the in-memory store.
type StorageConfig struct {
	Bucket string `yaml:"bucket"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		BigQuery: BigQueryConfig{
			Dataset: "treasury",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return Config{}, fmt.Errorf("config: invalid http port %d", cfg.HTTP.Port)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TREASURY_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}
	if v := os.Getenv("TREASURY_BQ_PROJECT"); v != "" {
		cfg.BigQuery.Project = v
	}
	if v := os.Getenv("TREASURY_BQ_DATASET"); v != "" {
		cfg.BigQuery.Dataset = v
	}
	if v := os.Getenv("TREASURY_GCS_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("TREASURY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

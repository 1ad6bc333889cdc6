package config

import (
	"time"

	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

// DetectorConfig selects and configures the entity detector
type DetectorConfig struct {
	Name         string            `mapstructure:"name"`
	ModelBaseURL string            `mapstructure:"model_base_url"`
	ModelDir     string            `mapstructure:"model_dir"`
	RateLimit    float64           `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Timeout      time.Duration     `mapstructure:"timeout"`
	Patterns     map[string]string `mapstructure:"patterns"`
}

// GeneratorConfig configures synthetic value generation
type GeneratorConfig struct {
	Seed int64 `mapstructure:"seed"` // 0 = seeded from the clock
}

// PipelineConfig holds batch pipeline settings
type PipelineConfig struct {
	InputDir          string        `mapstructure:"input_dir"`
	ProcessedDir      string        `mapstructure:"processed_dir"`
	ReportsDir        string        `mapstructure:"reports_dir"`
	DocumentDelay     time.Duration `mapstructure:"document_delay"` // pause between documents, 0 = none
	AllowedExtensions []string      `mapstructure:"allowed_extensions"`
	MaxFileSizeBytes  int64         `mapstructure:"max_file_size_bytes"`
}

// DatabaseConfig holds report database configuration
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"` // "", sqlite or postgres
	Path         string        `mapstructure:"path"`   // SQLite file
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Database     string        `mapstructure:"database"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	SSLMode      string        `mapstructure:"ssl_mode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// LogFileConfig configures the rotating log file
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"` // json or console
	File   LogFileConfig `mapstructure:"file"`
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	Release     string  `mapstructure:"release"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Config holds all configuration for the document cleanser
type Config struct {
	Detector  DetectorConfig  `mapstructure:"detector"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Detector: DetectorConfig{
			Name:         detectors.DetectorNameRegex,
			ModelBaseURL: "http://localhost:8000",
			ModelDir:     "model/quantized",
			Timeout:      30 * time.Second,
		},
		Pipeline: PipelineConfig{
			InputDir:          "input",
			ProcessedDir:      "processed",
			ReportsDir:        "reports",
			AllowedExtensions: []string{".txt", ".md", ".csv", ".log", ".json", ".xml", ".html"},
			MaxFileSizeBytes:  10 * 1024 * 1024,
		},
		Database: DatabaseConfig{
			Driver:       "",
			Path:         "cleanser.db",
			Host:         "localhost",
			Port:         5432,
			Database:     "cleanser",
			Username:     "postgres",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 25,
			MaxLifetime:  5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LogFileConfig{
				Path:       "logs/cleanser.log",
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Sentry: SentryConfig{
			Environment: "development",
			SampleRate:  1.0,
		},
		Server: ServerConfig{
			Port:            ":8081",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    5 * 1024 * 1024,
			AllowedOrigins:  []string{"*"},
		},
	}
}

// DetectorOptions builds the factory options for the configured detector
func (d DetectorConfig) DetectorOptions() map[string]interface{} {
	switch d.Name {
	case detectors.DetectorNameModel:
		return map[string]interface{}{
			"base_url":   d.ModelBaseURL,
			"rate_limit": d.RateLimit,
			"timeout":    d.Timeout,
		}
	case detectors.DetectorNameONNXModel:
		return map[string]interface{}{"model_dir": d.ModelDir}
	default:
		options := map[string]interface{}{}
		if len(d.Patterns) > 0 {
			options["patterns"] = d.Patterns
		}
		return options
	}
}

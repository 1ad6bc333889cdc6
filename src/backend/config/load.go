package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader reads configuration from an optional file, then applies environment
// overrides on top.
type Loader struct {
	mu sync.Mutex
	v  *viper.Viper
}

// NewLoader creates a loader. With an empty path it looks for cleanser.yaml
// (or .json) in the working directory and ./configs.
func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cleanser")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	return &Loader{v: v}
}

// Load is a shortcut for NewLoader(path).Load()
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Load builds the configuration: defaults, then file, then environment
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.build()
}

func (l *Loader) build() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ConfigFile returns the file in use, if any
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with every valid configuration written to the config
// file. Invalid edits are reported to onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.build()
		l.mu.Unlock()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// LoadFromEnv applies environment variable overrides
func LoadFromEnv(cfg *Config) {
	loadDetectorConfig(cfg)
	loadPipelineConfig(cfg)
	loadDatabaseConfig(cfg)
	loadLoggingConfig(cfg)
	loadSentryConfig(cfg)
	loadServerConfig(cfg)
}

func loadDetectorConfig(cfg *Config) {
	if name := os.Getenv("DETECTOR_NAME"); name != "" {
		cfg.Detector.Name = name
	}
	if baseURL := os.Getenv("MODEL_BASE_URL"); baseURL != "" {
		cfg.Detector.ModelBaseURL = baseURL
	}
	if modelDir := os.Getenv("MODEL_DIR"); modelDir != "" {
		cfg.Detector.ModelDir = modelDir
	}
	if rateLimit := os.Getenv("MODEL_RATE_LIMIT"); rateLimit != "" {
		if rps, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			cfg.Detector.RateLimit = rps
		}
	}
	if timeout := os.Getenv("MODEL_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Detector.Timeout = d
		}
	}
	if seed := os.Getenv("GENERATOR_SEED"); seed != "" {
		if s, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Generator.Seed = s
		}
	}
}

func loadPipelineConfig(cfg *Config) {
	if dir := os.Getenv("INPUT_DIR"); dir != "" {
		cfg.Pipeline.InputDir = dir
	}
	if dir := os.Getenv("PROCESSED_DIR"); dir != "" {
		cfg.Pipeline.ProcessedDir = dir
	}
	if dir := os.Getenv("REPORTS_DIR"); dir != "" {
		cfg.Pipeline.ReportsDir = dir
	}
	if delay := os.Getenv("DOCUMENT_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			cfg.Pipeline.DocumentDelay = d
		}
	}
}

func loadDatabaseConfig(cfg *Config) {
	if driver, ok := os.LookupEnv("DB_DRIVER"); ok {
		cfg.Database.Driver = driver
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Database = dbName
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.Username = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if sslMode := os.Getenv("DB_SSL_MODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}
}

func loadLoggingConfig(cfg *Config) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = strings.ToLower(format)
	}
	if path := os.Getenv("LOG_FILE"); path != "" {
		cfg.Logging.File.Enabled = true
		cfg.Logging.File.Path = path
	}
}

func loadSentryConfig(cfg *Config) {
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.Sentry.DSN = dsn
	}
	if env := os.Getenv("SENTRY_ENVIRONMENT"); env != "" {
		cfg.Sentry.Environment = env
	}
	if release := os.Getenv("SENTRY_RELEASE"); release != "" {
		cfg.Sentry.Release = release
	}
}

func loadServerConfig(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
}

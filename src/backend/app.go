package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hannes/doc-cleanser/src/backend/config"
	"github.com/hannes/doc-cleanser/src/backend/logging"
	"github.com/hannes/doc-cleanser/src/backend/pii"
	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
	"github.com/hannes/doc-cleanser/src/backend/report"
	"github.com/hannes/doc-cleanser/src/backend/telemetry"
)

const flushTimeout = 2 * time.Second

// app holds the long-lived components shared by every command
type app struct {
	loader     *config.Loader
	config     *config.Config
	logger     *logging.Logger
	reporter   telemetry.Reporter
	store      report.Store
	manager    *pii.DetectorManager
	anonymizer *pii.Anonymizer
}

// newApp loads configuration and builds the components in dependency order.
// The report store is only opened when withStore is set.
func newApp(ctx context.Context, opts *RootOptions, withStore bool) (*app, error) {
	loader := config.NewLoader(opts.ConfigPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File: &logging.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if file := loader.ConfigFile(); file != "" {
		logger.Info("Loaded configuration", zap.String("file", file))
	}

	reporter, err := telemetry.New(telemetry.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		loader:   loader,
		config:   cfg,
		logger:   logger,
		reporter: reporter,
		store:    report.NopStore{},
	}

	if withStore {
		store, err := report.Open(ctx, report.Config{
			Driver:       cfg.Database.Driver,
			Path:         cfg.Database.Path,
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			Username:     cfg.Database.Username,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			MaxLifetime:  cfg.Database.MaxLifetime,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open report store: %w", err)
		}
		a.store = store
	}

	if cfg.Detector.Name == detectors.DetectorNameONNXModel {
		if n, err := extractEmbeddedModelFiles(modelFiles, cfg.Detector.ModelDir); err != nil {
			logger.Warn("Failed to extract embedded model files, using files on disk", zap.Error(err))
		} else if n > 0 {
			logger.Info("Extracted embedded model files", zap.Int("files", n), zap.String("dir", cfg.Detector.ModelDir))
		}
	}

	a.manager = pii.NewDetectorManager(cfg.Detector.Name, cfg.Detector.DetectorOptions(), logger)

	var generator *pii.GeneratorService
	if cfg.Generator.Seed != 0 {
		generator = pii.NewGeneratorServiceWithSeed(cfg.Generator.Seed)
	} else {
		generator = pii.NewGeneratorService()
	}
	a.anonymizer = pii.NewAnonymizer(a.manager, generator, pii.WithLogger(logger))

	return a, nil
}

func (a *app) close() {
	if a.manager != nil {
		if err := a.manager.Close(); err != nil {
			a.logger.Warn("Failed to close detector", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close report store", zap.Error(err))
	}
	a.reporter.Flush(flushTimeout)
	_ = a.logger.Sync()
}

// extractEmbeddedModelFiles writes the embedded model into dir. It returns
// the number of files written, zero when nothing is embedded.
func extractEmbeddedModelFiles(modelFS embed.FS, dir string) (int, error) {
	var files []string
	err := fs.WalkDir(modelFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, err
	}
	for _, path := range files {
		content, err := modelFS.ReadFile(path)
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(path)), content, 0o600); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}

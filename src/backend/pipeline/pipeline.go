package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hannes/doc-cleanser/src/backend/config"
	"github.com/hannes/doc-cleanser/src/backend/logging"
	"github.com/hannes/doc-cleanser/src/backend/pii"
	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
	"github.com/hannes/doc-cleanser/src/backend/report"
	"github.com/hannes/doc-cleanser/src/backend/telemetry"
)

// Skip reasons recorded for documents that never reach the anonymizer
const (
	ReasonEmptyDocument     = "empty_document"
	ReasonFileTooLarge      = "file_too_large"
	ReasonExtractionFailure = "extraction_failure"
)

// Anonymizer is the part of pii.Anonymizer the pipeline needs
type Anonymizer interface {
	AnonymizeWithStats(ctx context.Context, raw string) (pii.Result, error)
}

// Summary describes one pipeline run. It is written as JSON next to the
// other run reports.
type Summary struct {
	RunID      string                  `json:"run_id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Processed  int                     `json:"processed"`
	Skipped    int                     `json:"skipped"`
	Totals     pii.Stats               `json:"totals"`
	Documents  []report.DocumentRecord `json:"documents"`
}

// Pipeline cleanses every supported document in an input directory
type Pipeline struct {
	anonymizer Anonymizer
	extractor  *Extractor
	store      report.Store
	reporter   telemetry.Reporter
	logger     *logging.Logger
	config     config.PipelineConfig
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

func WithStore(store report.Store) Option {
	return func(p *Pipeline) { p.store = store }
}

func WithReporter(reporter telemetry.Reporter) Option {
	return func(p *Pipeline) { p.reporter = reporter }
}

func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger.WithComponent("pipeline") }
}

// New creates a pipeline. Without options records and failure events are
// discarded.
func New(anonymizer Anonymizer, cfg config.PipelineConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		anonymizer: anonymizer,
		extractor:  NewExtractor(cfg.AllowedExtensions, cfg.MaxFileSizeBytes),
		store:      report.NopStore{},
		reporter:   telemetry.NopReporter{},
		logger:     logging.NewNop(),
		config:     cfg,
		now:        time.Now,
	}
	if cfg.DocumentDelay > 0 {
		p.limiter = rate.NewLimiter(rate.Every(cfg.DocumentDelay), 1)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes the input directory once. A failing document is recorded as
// skipped and the run continues; cancelling ctx stops the run between
// documents and still writes the summary of what was done.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	for _, dir := range []string{p.config.InputDir, p.config.ProcessedDir, p.config.ReportsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Summary{}, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	entries, err := os.ReadDir(p.config.InputDir)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list input directory: %w", err)
	}

	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: p.now().UTC(),
		Totals:    pii.Stats{EntityCounts: map[detectors.EntityKind]int{}},
		Documents: []report.DocumentRecord{},
	}
	logger := p.logger.With(zap.String("run_id", summary.RunID))

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(p.config.InputDir, entry.Name())
		if !p.extractor.Supported(path) {
			logger.Debug("skipping unsupported file", zap.String("file", entry.Name()))
			continue
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		logger.Warn("no documents found", zap.String("input_dir", p.config.InputDir))
	} else {
		logger.Info("starting run", zap.Int("documents", len(paths)))
	}

	var runErr error
	for i, path := range paths {
		if err := p.wait(ctx); err != nil {
			runErr = err
			break
		}

		record, stats, err := p.processDocument(ctx, summary.RunID, path)
		if err != nil {
			runErr = err
			break
		}

		if err := p.store.RecordDocument(ctx, record); err != nil {
			logger.Error("failed to record document",
				zap.String("document_id", record.ID),
				zap.Error(err),
			)
		}
		summary.add(record, stats)

		logger.Info("document finished",
			zap.Int("index", i+1),
			zap.Int("total", len(paths)),
			zap.String("file", record.FileName),
			zap.String("status", string(record.Status)),
		)
	}

	summary.FinishedAt = p.now().UTC()
	if err := p.writeSummary(summary); err != nil {
		return summary, err
	}
	logger.Info("run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, runErr
}

// processDocument extracts, anonymizes and writes one document. The returned
// error is only set when the run must stop.
func (p *Pipeline) processDocument(ctx context.Context, runID, path string) (report.DocumentRecord, pii.Stats, error) {
	record := report.DocumentRecord{
		ID:           uuid.NewString(),
		RunID:        runID,
		FileName:     filepath.Base(path),
		FileType:     fileType(path),
		Status:       report.StatusProcessed,
		EntityCounts: map[detectors.EntityKind]int{},
	}
	logger := p.logger.WithDocument(record.ID)

	doc, err := p.extractor.Extract(path)
	if err != nil {
		record.Status = report.StatusSkipped
		record.Reason = extractionReason(err)
		record.ProcessedAt = p.now().UTC()
		logger.Warn("skipping document",
			zap.String("file", record.FileName),
			zap.String("reason", record.Reason),
		)
		return record, pii.Stats{}, nil
	}

	result, err := p.anonymizer.AnonymizeWithStats(ctx, doc.Text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return record, pii.Stats{}, ctxErr
		}
		record.Status = report.StatusSkipped
		record.Reason = pii.ErrorClass(err)
		record.ProcessedAt = p.now().UTC()
		p.reporter.ReportDocumentFailure(record.ID, record.FileType, err)
		logger.Warn("anonymization failed, skipping document",
			zap.String("file", record.FileName),
			zap.String("error_class", record.Reason),
		)
		return record, pii.Stats{}, nil
	}

	outputPath := filepath.Join(p.config.ProcessedDir, doc.Name+"_cleansed.txt")
	if err := os.WriteFile(outputPath, []byte(result.Text), 0o644); err != nil {
		return record, pii.Stats{}, fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	record.ApplyStats(result.Stats)
	record.ProcessedAt = p.now().UTC()
	return record, result.Stats, nil
}

func (p *Pipeline) wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

func (p *Pipeline) writeSummary(summary Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	path := filepath.Join(p.config.ReportsDir, summary.RunID+"_summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

func (s *Summary) add(record report.DocumentRecord, stats pii.Stats) {
	s.Documents = append(s.Documents, record)
	if record.Status != report.StatusProcessed {
		s.Skipped++
		return
	}
	s.Processed++
	for kind, n := range stats.EntityCounts {
		s.Totals.EntityCounts[kind] += n
	}
	s.Totals.Substitutions += stats.Substitutions
	s.Totals.PersonSubstitutions += stats.PersonSubstitutions
	s.Totals.EmailsReplaced += stats.EmailsReplaced
	s.Totals.IPv4Replaced += stats.IPv4Replaced
	s.Totals.UnmappedEntities += stats.UnmappedEntities
}

func extractionReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyDocument):
		return ReasonEmptyDocument
	case errors.Is(err, ErrFileTooLarge):
		return ReasonFileTooLarge
	default:
		return ReasonExtractionFailure
	}
}

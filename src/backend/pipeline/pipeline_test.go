package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannes/doc-cleanser/src/backend/config"
	"github.com/hannes/doc-cleanser/src/backend/logging"
	"github.com/hannes/doc-cleanser/src/backend/pii"
	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
	"github.com/hannes/doc-cleanser/src/backend/report"
)

type memoryStore struct {
	mu      sync.Mutex
	records []report.DocumentRecord
	err     error
}

func (s *memoryStore) RecordDocument(_ context.Context, record report.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *memoryStore) ListRun(_ context.Context, runID string) ([]report.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []report.DocumentRecord
	for _, r := range s.records {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }

type failure struct {
	documentID string
	fileType   string
	class      string
}

type recordingReporter struct {
	mu       sync.Mutex
	failures []failure
}

func (r *recordingReporter) ReportDocumentFailure(documentID, fileType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure{documentID, fileType, pii.ErrorClass(err)})
}

func (r *recordingReporter) ReportPanic(string, interface{}) {}

func (r *recordingReporter) Flush(time.Duration) bool { return true }

// funcAnonymizer adapts a function to the Anonymizer interface
type funcAnonymizer func(ctx context.Context, raw string) (pii.Result, error)

func (f funcAnonymizer) AnonymizeWithStats(ctx context.Context, raw string) (pii.Result, error) {
	return f(ctx, raw)
}

func passthrough() funcAnonymizer {
	return func(_ context.Context, raw string) (pii.Result, error) {
		return pii.Result{Text: raw, Stats: pii.Stats{EntityCounts: map[detectors.EntityKind]int{}}}, nil
	}
}

func newTestConfig(t *testing.T) config.PipelineConfig {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig().Pipeline
	cfg.InputDir = filepath.Join(root, "input")
	cfg.ProcessedDir = filepath.Join(root, "processed")
	cfg.ReportsDir = filepath.Join(root, "reports")
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0o755))
	return cfg
}

func writeInput(t *testing.T, cfg config.PipelineConfig, name, content string) {
	t.Helper()
	writeFile(t, cfg.InputDir, name, []byte(content))
}

func newRegexAnonymizer(t *testing.T) *pii.Anonymizer {
	t.Helper()
	manager := pii.NewDetectorManager(detectors.DetectorNameRegex, map[string]interface{}{}, logging.NewNop())
	t.Cleanup(func() { _ = manager.Close() })
	require.True(t, manager.IsHealthy())
	return pii.NewAnonymizer(manager, pii.NewGeneratorServiceWithSeed(42))
}

func readSummary(t *testing.T, cfg config.PipelineConfig, runID string) Summary {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.ReportsDir, runID+"_summary.json"))
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	return summary
}

func TestPipeline_Run(t *testing.T) {
	cfg := newTestConfig(t)
	writeInput(t, cfg, "a.txt", "Mail bob@corp.io from 10.0.0.1 on 2021-03-04.")
	writeInput(t, cfg, "b.md", "Nothing sensitive here.")
	writeInput(t, cfg, "c.bin", "bob@corp.io")
	writeInput(t, cfg, "empty.txt", "   \n")

	store := &memoryStore{}
	p := New(newRegexAnonymizer(t), cfg, WithStore(store))

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Documents, 3)
	assert.Equal(t, "a.txt", summary.Documents[0].FileName)
	assert.Equal(t, "b.md", summary.Documents[1].FileName)
	assert.Equal(t, "empty.txt", summary.Documents[2].FileName)
	assert.Equal(t, ReasonEmptyDocument, summary.Documents[2].Reason)

	cleansed, err := os.ReadFile(filepath.Join(cfg.ProcessedDir, "a.txt_cleansed.txt"))
	require.NoError(t, err)
	for _, original := range []string{"bob@corp.io", "10.0.0.1", "2021-03-04"} {
		assert.NotContains(t, string(cleansed), original)
	}
	assert.True(t, strings.HasPrefix(string(cleansed), "Mail "))

	untouched, err := os.ReadFile(filepath.Join(cfg.ProcessedDir, "b.md_cleansed.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Nothing sensitive here.", string(untouched))

	assert.NoFileExists(t, filepath.Join(cfg.ProcessedDir, "c.bin_cleansed.txt"))
	assert.NoFileExists(t, filepath.Join(cfg.ProcessedDir, "empty.txt_cleansed.txt"))

	first := summary.Documents[0]
	assert.Equal(t, report.StatusProcessed, first.Status)
	assert.Equal(t, 1, first.Substitutions)
	assert.Equal(t, 1, first.EmailsReplaced)
	assert.Equal(t, 1, first.IPv4Replaced)
	assert.Equal(t, 1, first.Tier)
	assert.Equal(t, 1, first.EntityCounts[detectors.KindEmail])

	assert.Equal(t, 1, summary.Totals.EmailsReplaced)
	assert.Equal(t, 1, summary.Totals.EntityCounts[detectors.KindDate])

	records, err := store.ListRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	written := readSummary(t, cfg, summary.RunID)
	assert.Equal(t, summary.RunID, written.RunID)
	assert.Equal(t, 2, written.Processed)
	assert.Len(t, written.Documents, 3)
}

func TestPipeline_Run_FailedDocumentIsSkipped(t *testing.T) {
	cfg := newTestConfig(t)
	writeInput(t, cfg, "bad.txt", "FAIL for Ann")
	writeInput(t, cfg, "good.txt", "fine")

	anonymizer := funcAnonymizer(func(ctx context.Context, raw string) (pii.Result, error) {
		if strings.Contains(raw, "FAIL") {
			return pii.Result{}, fmt.Errorf("%w: recognizer down", pii.ErrDetection)
		}
		return passthrough()(ctx, raw)
	})
	reporter := &recordingReporter{}
	p := New(anonymizer, cfg, WithReporter(reporter))

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)

	bad := summary.Documents[0]
	assert.Equal(t, report.StatusSkipped, bad.Status)
	assert.Equal(t, "detection_failure", bad.Reason)
	assert.NoFileExists(t, filepath.Join(cfg.ProcessedDir, "bad.txt_cleansed.txt"))
	assert.FileExists(t, filepath.Join(cfg.ProcessedDir, "good.txt_cleansed.txt"))

	require.Len(t, reporter.failures, 1)
	assert.Equal(t, failure{bad.ID, ".txt", "detection_failure"}, reporter.failures[0])
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	cfg := newTestConfig(t)
	writeInput(t, cfg, "a.txt", "one")
	writeInput(t, cfg, "b.txt", "two")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(passthrough(), cfg).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Processed)
	assert.NoFileExists(t, filepath.Join(cfg.ProcessedDir, "a.txt_cleansed.txt"))
	assert.Equal(t, summary.RunID, readSummary(t, cfg, summary.RunID).RunID)
}

func TestPipeline_Run_CancelledMidRun(t *testing.T) {
	cfg := newTestConfig(t)
	writeInput(t, cfg, "a.txt", "one")
	writeInput(t, cfg, "b.txt", "two")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	anonymizer := funcAnonymizer(func(ctx context.Context, raw string) (pii.Result, error) {
		cancel()
		return passthrough()(ctx, raw)
	})

	summary, err := New(anonymizer, cfg).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Processed)
	assert.FileExists(t, filepath.Join(cfg.ProcessedDir, "a.txt_cleansed.txt"))
	assert.NoFileExists(t, filepath.Join(cfg.ProcessedDir, "b.txt_cleansed.txt"))
}

func TestPipeline_Run_DocumentDelay(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.DocumentDelay = 50 * time.Millisecond
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeInput(t, cfg, name, "text")
	}

	start := time.Now()
	summary, err := New(passthrough(), cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPipeline_Run_StoreErrorDoesNotStopRun(t *testing.T) {
	cfg := newTestConfig(t)
	writeInput(t, cfg, "a.txt", "one")
	writeInput(t, cfg, "b.txt", "two")

	p := New(passthrough(), cfg, WithStore(&memoryStore{err: errors.New("disk full")}))

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
}

func TestPipeline_Run_OversizedFile(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.MaxFileSizeBytes = 8
	writeInput(t, cfg, "big.txt", "more than eight bytes")

	summary, err := New(passthrough(), cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Documents, 1)
	assert.Equal(t, ReasonFileTooLarge, summary.Documents[0].Reason)
	assert.Equal(t, 1, summary.Skipped)
}

func TestPipeline_Run_EmptyInputDir(t *testing.T) {
	cfg := newTestConfig(t)

	summary, err := New(passthrough(), cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Processed)
	assert.Empty(t, summary.Documents)
	assert.DirExists(t, cfg.ProcessedDir)
}

package pii

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/hannes/doc-cleanser/src/backend/logging"
	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

const previewLength = 150

// DetectorProvider is an interface for getting the current detector.
// This allows the Anonymizer to always use the latest detector after hot reloads.
type DetectorProvider interface {
	GetDetector() (detectors.Detector, error)
}

// Stats summarises what was found and replaced in one document. It carries
// counts only.
type Stats struct {
	EntityCounts        map[detectors.EntityKind]int `json:"entity_counts"`
	Substitutions       int                          `json:"substitutions"`
	PersonSubstitutions int                          `json:"person_substitutions"`
	EmailsReplaced      int                          `json:"emails_replaced"`
	IPv4Replaced        int                          `json:"ipv4_replaced"`
	UnmappedEntities    int                          `json:"unmapped_entities"`
}

// Replaced is the total number of distinct values and pattern tokens replaced
func (s Stats) Replaced() int {
	return s.Substitutions + s.EmailsReplaced + s.IPv4Replaced
}

// Result is an anonymized document with its stats
type Result struct {
	Text  string `json:"text"`
	Stats Stats  `json:"stats"`
}

// Anonymizer detects sensitive spans in a document and rewrites them with
// synthetic values. Each call builds its own SubstitutionMap, so one
// Anonymizer can serve concurrent callers.
type Anonymizer struct {
	detectorProvider DetectorProvider
	generator        Generator
	rewriter         *Rewriter
	logger           *logging.Logger
}

// AnonymizerOption configures an Anonymizer
type AnonymizerOption func(*Anonymizer)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) AnonymizerOption {
	return func(a *Anonymizer) {
		a.logger = logger.WithComponent("anonymizer")
	}
}

// NewAnonymizer creates an anonymizer.
// The detectorProvider should be a DetectorManager that provides the current detector.
func NewAnonymizer(detectorProvider DetectorProvider, generator Generator, opts ...AnonymizerOption) *Anonymizer {
	a := &Anonymizer{
		detectorProvider: detectorProvider,
		generator:        generator,
		rewriter:         NewRewriter(generator),
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Anonymize returns raw with sensitive values replaced. On error no text is
// returned; errors wrap ErrDetection or ErrGeneration.
func (a *Anonymizer) Anonymize(ctx context.Context, raw string) (string, error) {
	result, err := a.AnonymizeWithStats(ctx, raw)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// AnonymizeWithStats is Anonymize plus per-document counts
func (a *Anonymizer) AnonymizeWithStats(ctx context.Context, raw string) (Result, error) {
	stats := Stats{EntityCounts: map[detectors.EntityKind]int{}}
	if strings.TrimSpace(raw) == "" {
		return Result{Text: raw, Stats: stats}, nil
	}

	detector, err := a.detectorProvider.GetDetector()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDetection, err)
	}

	output, err := detector.Detect(ctx, detectors.DetectorInput{Text: raw})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrDetection, detector.GetName(), err)
	}
	entities := output.Entities

	substitutions, err := BuildMap(entities, a.generator)
	if err != nil {
		return Result{}, err
	}

	text, rewriteStats, err := a.rewriter.rewrite(raw, substitutions)
	if err != nil {
		return Result{}, err
	}

	stats.EntityCounts = lo.CountValuesBy(entities, func(e detectors.Entity) detectors.EntityKind {
		return e.Label
	})
	stats.Substitutions = rewriteStats.Substitutions
	stats.PersonSubstitutions = substitutions.CountByKind()[detectors.KindPerson]
	stats.EmailsReplaced = rewriteStats.EmailsReplaced
	stats.IPv4Replaced = rewriteStats.IPv4Replaced
	stats.UnmappedEntities = stats.EntityCounts[detectors.KindOther]

	a.logger.Debug("document anonymized",
		zap.String("detector", detector.GetName()),
		zap.Int("entities", len(entities)),
		zap.Int("substitutions", stats.Substitutions),
		zap.Int("emails_replaced", stats.EmailsReplaced),
		zap.Int("ipv4_replaced", stats.IPv4Replaced),
		zap.Int("unmapped_entities", stats.UnmappedEntities),
		zap.String("preview", preview(text)),
	)

	return Result{Text: text, Stats: stats}, nil
}

// preview returns the first previewLength runes of anonymized text
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}

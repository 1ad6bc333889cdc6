package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hannes/doc-cleanser/src/backend/pii"
)

// Reporter sends failure events to an error tracker. Events carry identifiers
// and error classes only; error messages may quote document content and are
// never forwarded.
type Reporter interface {
	ReportDocumentFailure(documentID, fileType string, err error)
	ReportPanic(component string, recovered interface{})
	Flush(timeout time.Duration) bool
}

// Config holds Sentry settings
type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// New returns a Sentry-backed reporter, or a no-op reporter when DSN is empty
func New(cfg Config) (Reporter, error) {
	if cfg.DSN == "" {
		return NopReporter{}, nil
	}
	return NewSentryReporter(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  cfg.SampleRate,
	})
}

// SentryReporter reports through its own hub so it never touches global state
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter creates a reporter from client options. Default PII
// collection is always disabled.
func NewSentryReporter(options sentry.ClientOptions) (*SentryReporter, error) {
	options.SendDefaultPII = false
	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) ReportDocumentFailure(documentID, fileType string, err error) {
	class := pii.ErrorClass(err)
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("document_id", documentID)
		scope.SetTag("file_type", fileType)
		scope.SetTag("error_class", class)
		r.hub.CaptureMessage("document skipped: " + class)
	})
}

func (r *SentryReporter) ReportPanic(component string, recovered interface{}) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTag("component", component)
		scope.SetTag("panic_type", fmt.Sprintf("%T", recovered))
		r.hub.CaptureMessage("panic recovered in " + component)
	})
}

func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// NopReporter drops every event
type NopReporter struct{}

func (NopReporter) ReportDocumentFailure(string, string, error) {}

func (NopReporter) ReportPanic(string, interface{}) {}

func (NopReporter) Flush(time.Duration) bool { return true }

package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannes/doc-cleanser/src/backend/pii"
)

// captureReporter builds a SentryReporter whose events are collected and
// dropped before reaching the transport.
func captureReporter(t *testing.T) (*SentryReporter, func() []*sentry.Event) {
	t.Helper()
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	reporter, err := NewSentryReporter(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
			return nil
		},
	})
	require.NoError(t, err)

	return reporter, func() []*sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]*sentry.Event(nil), events...)
	}
}

func TestNew_EmptyDSNIsNop(t *testing.T) {
	reporter, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopReporter{}, reporter)
	assert.True(t, reporter.Flush(time.Millisecond))
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(Config{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestSentryReporter_DocumentFailureOmitsMessage(t *testing.T) {
	reporter, events := captureReporter(t)

	cause := fmt.Errorf("%w: model said Alice Smith is unknown", pii.ErrDetection)
	reporter.ReportDocumentFailure("doc-42", ".txt", cause)

	got := events()
	require.Len(t, got, 1)
	event := got[0]
	assert.Equal(t, "document skipped: detection_failure", event.Message)
	assert.Equal(t, "doc-42", event.Tags["document_id"])
	assert.Equal(t, ".txt", event.Tags["file_type"])
	assert.Equal(t, "detection_failure", event.Tags["error_class"])
	assert.Equal(t, sentry.LevelError, event.Level)
	assert.NotContains(t, fmt.Sprintf("%+v", event), "Alice")
}

func TestSentryReporter_Panic(t *testing.T) {
	reporter, events := captureReporter(t)

	reporter.ReportPanic("server", errors.New("boom"))

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, "server", got[0].Tags["component"])
	assert.Equal(t, "*errors.errorString", got[0].Tags["panic_type"])
}

func TestNopReporter(t *testing.T) {
	var reporter Reporter = NopReporter{}
	reporter.ReportDocumentFailure("id", ".txt", errors.New("x"))
	reporter.ReportPanic("c", "v")
}

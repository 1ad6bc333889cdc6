package pii

import "errors"

var (
	// ErrDetection marks a document whose entity detection failed. No text
	// is produced for it.
	ErrDetection = errors.New("detection failure")

	// ErrGeneration marks a document for which a synthetic value could not be
	// produced. No text is produced for it.
	ErrGeneration = errors.New("generation failure")

	// ErrNoDetector is returned by a DetectorProvider with no usable detector
	ErrNoDetector = errors.New("no detector available")

	// ErrUnsupportedKind is returned by GeneratorService for kinds it cannot generate
	ErrUnsupportedKind = errors.New("unsupported entity kind")
)

// ErrorClass returns a short label for err suitable for reports and metrics.
// It never includes the error message, which may quote document content.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDetection):
		return "detection_failure"
	case errors.Is(err, ErrGeneration):
		return "generation_failure"
	default:
		return "internal_error"
	}
}

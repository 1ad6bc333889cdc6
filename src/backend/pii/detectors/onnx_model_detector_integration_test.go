//go:build integration && onnx
// +build integration,onnx

package pii

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testModelDir = getEnvOrDefault("ONNX_MODEL_DIR", "../../../../model/quantized")

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func skipIfNoONNX(t *testing.T) {
	for _, name := range []string{ModelFileName, TokenizerFileName, LabelMapFileName} {
		path := filepath.Join(testModelDir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Skipf("Skipping: %s not found", path)
		}
	}
}

func newTestONNXDetector(t *testing.T) *ONNXModelDetector {
	t.Helper()
	skipIfNoONNX(t)

	detector, err := NewONNXModelDetector(testModelDir)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	t.Cleanup(func() { _ = detector.Close() })
	return detector
}

func TestONNXModelDetector_NewDetector(t *testing.T) {
	detector := newTestONNXDetector(t)

	if detector.tokenizer == nil {
		t.Error("Expected tokenizer to be initialized")
	}
	if detector.numPIILabels == 0 {
		t.Error("Expected numPIILabels > 0")
	}
}

func TestONNXModelDetector_Detect_SimpleText(t *testing.T) {
	detector := newTestONNXDetector(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	input := DetectorInput{Text: "My name is John Smith and I live in Springfield"}
	output, err := detector.Detect(ctx, input)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if output.Text != input.Text {
		t.Errorf("Output text should match input")
	}
	for _, e := range output.Entities {
		if input.Text[e.StartPos:e.EndPos] != e.Text {
			t.Errorf("Entity text %q does not match its span", e.Text)
		}
	}
}

func TestONNXModelDetector_Detect_LongText(t *testing.T) {
	detector := newTestONNXDetector(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	text := strings.Repeat("The quarterly numbers were reviewed by the team. ", 200) + "Contact John Smith."
	output, err := detector.Detect(ctx, DetectorInput{Text: text})
	if err != nil {
		t.Fatalf("Detect failed on long text: %v", err)
	}
	t.Logf("Detected %d entities in long text", len(output.Entities))
}

func TestONNXModelDetector_Detect_ContextCancellation(t *testing.T) {
	detector := newTestONNXDetector(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := detector.Detect(ctx, DetectorInput{Text: "John Smith"}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestONNXModelDetector_EmptyText(t *testing.T) {
	detector := newTestONNXDetector(t)

	output, err := detector.Detect(context.Background(), DetectorInput{Text: ""})
	if err != nil {
		t.Fatalf("Detect failed on empty text: %v", err)
	}
	if len(output.Entities) != 0 {
		t.Errorf("Expected no entities, got %d", len(output.Entities))
	}
}

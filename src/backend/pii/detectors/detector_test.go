package pii

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorFactories_Registered(t *testing.T) {
	for _, name := range []string{DetectorNameModel, DetectorNameRegex, DetectorNameONNXModel} {
		assert.True(t, HasDetectorFactory(name), "factory %s should be registered", name)
	}
	assert.Subset(t, DetectorNames(), []string{DetectorNameModel, DetectorNameRegex, DetectorNameONNXModel})
}

func TestNewDetector_Unknown(t *testing.T) {
	_, err := NewDetector("nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector factory not found")
}

func TestNewDetector_ModelRequiresBaseURL(t *testing.T) {
	_, err := NewDetector(DetectorNameModel, map[string]interface{}{})
	require.Error(t, err)

	detector, err := NewDetector(DetectorNameModel, map[string]interface{}{"base_url": "http://localhost:8000", "rate_limit": 5.0})
	require.NoError(t, err)
	assert.Equal(t, DetectorNameModel, detector.GetName())
	assert.NoError(t, CloseDetector(detector))
}

func TestNewDetector_ONNXRequiresModelDir(t *testing.T) {
	_, err := NewDetector(DetectorNameONNXModel, map[string]interface{}{})
	require.Error(t, err)
}

func TestNewDetector_RegexCustomPatterns(t *testing.T) {
	detector, err := NewDetector(DetectorNameRegex, map[string]interface{}{
		"patterns": map[string]string{"EMAIL": EmailPattern},
	})
	require.NoError(t, err)

	output, err := detector.Detect(context.Background(), DetectorInput{Text: "x@y.com on 2020-01-01"})
	require.NoError(t, err)
	require.Len(t, output.Entities, 1)
	assert.Equal(t, KindEmail, output.Entities[0].Label)
}

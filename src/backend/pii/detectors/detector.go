package pii

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	DetectorNameModel     = "model_detector"
	DetectorNameRegex     = "regex_detector"
	DetectorNameONNXModel = "onnx_model_detector"
)

// ErrDetectorClosed is returned by Detect after Close
var ErrDetectorClosed = errors.New("detector is closed")

type Detector interface {
	GetName() string
	Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error)
	Close() error
}

type NewDetectorFunc func(config map[string]interface{}) (Detector, error)

var (
	factoriesMu       sync.RWMutex
	detectorFactories = make(map[string]NewDetectorFunc)
)

func RegisterDetectorFactory(name string, factory NewDetectorFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	detectorFactories[name] = factory
}

// HasDetectorFactory reports whether a factory is registered under name
func HasDetectorFactory(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := detectorFactories[name]
	return ok
}

// DetectorNames returns the registered detector names, sorted
func DetectorNames() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(detectorFactories))
	for name := range detectorFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewDetector(name string, config map[string]interface{}) (Detector, error) {
	factoriesMu.RLock()
	factory, ok := detectorFactories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("detector factory not found for name: %s", name)
	}
	return factory(config)
}

func init() {
	RegisterDetectorFactory(DetectorNameModel, func(config map[string]interface{}) (Detector, error) {
		baseURL, ok := config["base_url"].(string)
		if !ok || baseURL == "" {
			return nil, fmt.Errorf("base_url is required for model detector")
		}
		opts := []ModelDetectorOption{}
		if rps, ok := config["rate_limit"].(float64); ok && rps > 0 {
			opts = append(opts, WithRateLimit(rps))
		}
		if timeout, ok := config["timeout"].(time.Duration); ok && timeout > 0 {
			opts = append(opts, WithTimeout(timeout))
		}
		return NewModelDetector(baseURL, opts...), nil
	})

	RegisterDetectorFactory(DetectorNameRegex, func(config map[string]interface{}) (Detector, error) {
		if patterns, ok := config["patterns"].(map[string]string); ok && len(patterns) > 0 {
			return NewRegexDetector(patterns), nil
		}
		return NewRegexDetector(PIIPatterns), nil
	})

	RegisterDetectorFactory(DetectorNameONNXModel, func(config map[string]interface{}) (Detector, error) {
		modelDir, ok := config["model_dir"].(string)
		if !ok || modelDir == "" {
			return nil, fmt.Errorf("model_dir is required for ONNX model detector")
		}
		return NewONNXModelDetector(modelDir)
	})
}

func CloseDetector(detector Detector) error {
	return detector.Close()
}

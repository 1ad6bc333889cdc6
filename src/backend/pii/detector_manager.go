package pii

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hannes/doc-cleanser/src/backend/logging"
	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

// validationText is fed to every new detector before it is swapped in
const validationText = "Test with John Smith"

const validationTimeout = 30 * time.Second

// DetectorManager manages the detector lifecycle with thread-safe hot reload capability
type DetectorManager struct {
	reloadMu        sync.Mutex // serializes Reload
	mu              sync.RWMutex
	currentDetector detectors.Detector
	detectorName    string
	options         map[string]interface{}
	isHealthy       bool
	lastError       error
	loadedAt        time.Time
	logger          *logging.Logger
}

// DetectorInfo describes the manager state for health endpoints
type DetectorInfo struct {
	Name     string    `json:"name"`
	Healthy  bool      `json:"healthy"`
	Error    string    `json:"error,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

// NewDetectorManager creates a manager and performs the initial load. A
// failed load does not fail construction; the manager starts unhealthy and
// GetDetector returns ErrNoDetector until a Reload succeeds.
func NewDetectorManager(name string, options map[string]interface{}, logger *logging.Logger) *DetectorManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	dm := &DetectorManager{
		detectorName: name,
		options:      options,
		logger:       logger.WithComponent("detector_manager"),
	}

	if err := dm.Reload(name, options); err != nil {
		dm.logger.Warn("initial detector load failed, starting unhealthy",
			zap.String("detector", name), zap.Error(err))
	}
	return dm
}

// GetDetector returns the current detector in a thread-safe manner
func (dm *DetectorManager) GetDetector() (detectors.Detector, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if !dm.isHealthy {
		if dm.lastError != nil {
			return nil, fmt.Errorf("%w: detector is unhealthy: %v", ErrNoDetector, dm.lastError)
		}
		return nil, fmt.Errorf("%w: detector is unhealthy", ErrNoDetector)
	}
	if dm.currentDetector == nil {
		return nil, ErrNoDetector
	}
	return dm.currentDetector, nil
}

// Reload builds a new detector, runs a validation inference on it and swaps
// it in. If any step fails the previous detector is kept but the manager is
// marked unhealthy, so GetDetector fails until a reload succeeds. Concurrent
// reloads run one after another; the last one to finish wins.
func (dm *DetectorManager) Reload(name string, options map[string]interface{}) error {
	dm.reloadMu.Lock()
	defer dm.reloadMu.Unlock()

	dm.logger.Info("reloading detector", zap.String("detector", name))

	// Step 1: Validate
	if err := validateDetectorOptions(name, options); err != nil {
		dm.markUnhealthy(err)
		return fmt.Errorf("validation failed: %w", err)
	}

	// Step 2: Build the new detector outside the lock
	newDetector, err := detectors.NewDetector(name, options)
	if err != nil {
		dm.markUnhealthy(err)
		return fmt.Errorf("failed to create detector: %w", err)
	}

	// Step 3: Run validation inference to ensure the detector works
	ctx, cancel := context.WithTimeout(context.Background(), validationTimeout)
	defer cancel()
	if _, err := newDetector.Detect(ctx, detectors.DetectorInput{Text: validationText}); err != nil {
		if closeErr := newDetector.Close(); closeErr != nil {
			dm.logger.Warn("failed to close rejected detector", zap.Error(closeErr))
		}
		dm.markUnhealthy(err)
		return fmt.Errorf("detector validation failed: %w", err)
	}

	// Step 4: Swap atomically
	dm.mu.Lock()
	oldDetector := dm.currentDetector
	dm.currentDetector = newDetector
	dm.detectorName = name
	dm.options = options
	dm.isHealthy = true
	dm.lastError = nil
	dm.loadedAt = time.Now()
	dm.mu.Unlock()

	// Step 5: Close the old detector outside the lock
	if oldDetector != nil {
		if err := oldDetector.Close(); err != nil {
			dm.logger.Warn("failed to close old detector", zap.Error(err))
		}
	}

	dm.logger.Info("detector reload complete", zap.String("detector", name))
	return nil
}

func (dm *DetectorManager) markUnhealthy(err error) {
	dm.mu.Lock()
	dm.isHealthy = false
	dm.lastError = err
	dm.mu.Unlock()
	dm.logger.Error("detector unhealthy", zap.Error(err))
}

// IsHealthy returns whether the current detector is healthy
func (dm *DetectorManager) IsHealthy() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.isHealthy
}

// LastError returns the last error encountered (if any)
func (dm *DetectorManager) LastError() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.lastError
}

// Info returns information about the current detector state
func (dm *DetectorManager) Info() DetectorInfo {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	info := DetectorInfo{
		Name:     dm.detectorName,
		Healthy:  dm.isHealthy,
		LoadedAt: dm.loadedAt,
	}
	if dm.lastError != nil {
		info.Error = dm.lastError.Error()
	}
	return info
}

// Close closes the current detector and cleans up resources
func (dm *DetectorManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.isHealthy = false
	if dm.currentDetector != nil {
		if err := dm.currentDetector.Close(); err != nil {
			dm.currentDetector = nil
			return fmt.Errorf("failed to close detector: %w", err)
		}
		dm.currentDetector = nil
	}
	return nil
}

// validateDetectorOptions checks the factory exists and, for the ONNX
// detector, that the model directory holds every required file.
func validateDetectorOptions(name string, options map[string]interface{}) error {
	if !detectors.HasDetectorFactory(name) {
		return fmt.Errorf("unknown detector %q (available: %v)", name, detectors.DetectorNames())
	}
	if name != detectors.DetectorNameONNXModel {
		return nil
	}

	dir, _ := options["model_dir"].(string)
	return validateModelDirectory(dir)
}

// validateModelDirectory checks that the directory exists and contains all required files
func validateModelDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	requiredFiles := []string{
		detectors.ModelFileName,
		detectors.TokenizerFileName,
		detectors.LabelMapFileName,
	}

	var missingFiles []string
	for _, filename := range requiredFiles {
		if _, err := os.Stat(filepath.Join(dir, filename)); os.IsNotExist(err) {
			missingFiles = append(missingFiles, filename)
		}
	}
	if len(missingFiles) > 0 {
		return fmt.Errorf("missing required files in directory: %v", missingFiles)
	}
	return nil
}

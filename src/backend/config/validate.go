package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
	validDrivers    = []string{"", "sqlite", "postgres"}
)

// Validate checks the configuration and returns every problem found
func (c *Config) Validate() error {
	var errs []error

	if err := validatePort(c.Server.Port, "Server.Port"); err != nil {
		errs = append(errs, err)
	}

	if !detectors.HasDetectorFactory(c.Detector.Name) {
		errs = append(errs, fmt.Errorf("Detector.Name: unknown detector (current value: %s)", c.Detector.Name))
	}
	switch c.Detector.Name {
	case detectors.DetectorNameModel:
		if c.Detector.ModelBaseURL == "" {
			errs = append(errs, errors.New("Detector.ModelBaseURL: required for model_detector"))
		}
	case detectors.DetectorNameONNXModel:
		if c.Detector.ModelDir == "" {
			errs = append(errs, errors.New("Detector.ModelDir: required for onnx_model_detector"))
		}
	}
	if c.Detector.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("Detector.RateLimit: must not be negative (current value: %g)", c.Detector.RateLimit))
	}

	if c.Pipeline.DocumentDelay < 0 {
		errs = append(errs, fmt.Errorf("Pipeline.DocumentDelay: must not be negative (current value: %s)", c.Pipeline.DocumentDelay))
	}

	if !lo.Contains(validDrivers, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("Database.Driver: must be empty, sqlite or postgres (current value: %s)", c.Database.Driver))
	}
	if c.Database.Driver == "postgres" && c.Database.Host == "" {
		errs = append(errs, errors.New("Database.Host: required for postgres"))
	}

	if !lo.Contains(validLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("Logging.Level: must be one of %s (current value: %s)", strings.Join(validLogLevels, ", "), c.Logging.Level))
	}
	if !lo.Contains(validLogFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("Logging.Format: must be json or console (current value: %s)", c.Logging.Format))
	}

	if c.Sentry.SampleRate < 0 || c.Sentry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("Sentry.SampleRate: must be between 0 and 1 (current value: %g)", c.Sentry.SampleRate))
	}

	return errors.Join(errs...)
}

// validatePort checks a listen address of the form ":PORT"
func validatePort(port string, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}
	if !strings.HasPrefix(port, ":") {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	portNum, err := strconv.Atoi(port[1:])
	if err != nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, portNum)
	}
	return nil
}


package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
		}
	}

	return builder.String()
}

// Validate checks the configuration for invalid or suspicious values.
// A missing watch path is a warning, not an error: the pipeline reports it
// through its status and stays stopped, the rest of the daemon still works.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if config.Watch.Path == "" {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "watch.path",
			Value:   config.Watch.Path,
			Message: "watch path not set, continuous watching disabled",
		})
	} else if !pathExists(config.Watch.Path) {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "watch.path",
			Value:   config.Watch.Path,
			Message: "watch path does not exist",
		})
	}

	for _, ext := range config.Watch.FileTypes {
		if !strings.HasPrefix(ext, ".") {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "watch.file_types",
				Value:   ext,
				Message: fmt.Sprintf("extension %q must start with a dot", ext),
			})
		}
	}

	if config.Watch.StabilizationMs < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "watch.stabilization_ms",
			Value:   config.Watch.StabilizationMs,
			Message: "stabilization window must not be negative",
		})
	}
	if config.Watch.PollMs <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "watch.poll_ms",
			Value:   config.Watch.PollMs,
			Message: "poll interval must be positive",
		})
	}

	if config.Storage.ThumbnailWidth <= 0 || config.Storage.ThumbnailHeight <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "storage.thumbnail_width",
			Value:   fmt.Sprintf("%dx%d", config.Storage.ThumbnailWidth, config.Storage.ThumbnailHeight),
			Message: "thumbnail bounding box must be positive",
		})
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Server.Port,
			Message: "port must be between 1 and 65535",
		})
	}

	result.Valid = !result.HasErrors()

	return result
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

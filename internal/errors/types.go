package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeProcessing ErrorType = "processing"
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeAsset      ErrorType = "asset"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeInternal   ErrorType = "internal"
)

// BoothError is a structured error type with context. Every failure surfaced
// by the core carries the offending filename or template key so callers can
// report exactly which artifact failed.
type BoothError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Filename    string
	TemplateKey string
	Recoverable bool
}

// Error implements the error interface.
func (e *BoothError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Filename != "" {
		parts = append(parts, "file:"+e.Filename)
	}

	if e.TemplateKey != "" {
		parts = append(parts, "template:"+e.TemplateKey)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BoothError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *BoothError) Is(target error) bool {
	var t *BoothError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithFilename attaches the offending filename.
func (e *BoothError) WithFilename(filename string) *BoothError {
	e.Filename = filename

	return e
}

// WithTemplateKey attaches the offending template key.
func (e *BoothError) WithTemplateKey(key string) *BoothError {
	e.TemplateKey = key

	return e
}

// Error creation functions

// NewConfigError creates a configuration error. Configuration errors are
// non-fatal: the pipeline stays stopped and reports the condition through
// its status field, so they are marked recoverable.
func NewConfigError(code, message string) *BoothError {
	return &BoothError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewProcessingError creates a single-file processing error.
func NewProcessingError(filename string, cause error) *BoothError {
	return &BoothError{
		Type:        ErrorTypeProcessing,
		Code:        ErrCodeProcessingFailed,
		Message:     "failed to process photo",
		Cause:       cause,
		Filename:    filename,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *BoothError {
	return &BoothError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewStorageError creates a storage I/O error.
func NewStorageError(code, message string, cause error) *BoothError {
	return &BoothError{
		Type:        ErrorTypeStorage,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *BoothError {
	return &BoothError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Classification helpers

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var be *BoothError
	if errors.As(err, &be) {
		return be.Recoverable
	}

	return false
}

// IsProcessingError checks if an error is a per-file processing failure.
func IsProcessingError(err error) bool {
	var be *BoothError
	if errors.As(err, &be) {
		return be.Type == ErrorTypeProcessing
	}

	return false
}

// IsTemplateNotFound checks if an error reports a missing template key.
func IsTemplateNotFound(err error) bool {
	var be *BoothError
	if errors.As(err, &be) {
		return be.Type == ErrorTypeTemplate && be.Code == ErrCodeTemplateNotFound
	}

	return false
}

// IsAssetMissing checks if an error reports a missing template asset.
func IsAssetMissing(err error) bool {
	var be *BoothError
	if errors.As(err, &be) {
		return be.Type == ErrorTypeAsset
	}

	return false
}

// Common error codes.
const (
	ErrCodeWatchPathInvalid = "ERR_WATCH_PATH_INVALID"
	ErrCodeProcessingFailed = "ERR_PROCESSING_FAILED"
	ErrCodeTemplateNotFound = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeAssetMissing     = "ERR_ASSET_MISSING"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
	ErrCodeStorageFailed    = "ERR_STORAGE_FAILED"
	ErrCodePersistFailed    = "ERR_PERSIST_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// Helper functions for common errors

// ErrWatchPathInvalid creates a watch path configuration error.
func ErrWatchPathInvalid(path string) *BoothError {
	return NewConfigError(ErrCodeWatchPathInvalid, "watch path not set or does not exist: "+path)
}

// ErrTemplateNotFound creates a template not found error.
func ErrTemplateNotFound(key string) *BoothError {
	return &BoothError{
		Type:        ErrorTypeTemplate,
		Code:        ErrCodeTemplateNotFound,
		Message:     "template not found",
		TemplateKey: key,
		Recoverable: true,
	}
}

// ErrAssetMissing creates an error for a template background that is absent
// from the frames store. Fatal for the compose call that needed it, nothing else.
func ErrAssetMissing(key, asset string) *BoothError {
	return &BoothError{
		Type:        ErrorTypeAsset,
		Code:        ErrCodeAssetMissing,
		Message:     "template asset missing: " + asset,
		TemplateKey: key,
		Recoverable: false,
	}
}

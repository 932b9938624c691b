// Package errors defines the error taxonomy used across the asset pipeline.
//
// Configuration errors degrade an operation to a no-op and are only logged.
// I/O and build errors abort the enclosing task sequence. Missing intermediate
// artifacts are not errors at all and never reach this package.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// PipelineError is a structured error type with pipeline context.
type PipelineError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Task    string
	Family  string
	Variant string
	Path    string
	Output  string
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		parts = append(parts, "task:"+e.Task)
	}

	if e.Family != "" {
		location := e.Family
		if e.Variant != "" {
			location += "/" + e.Variant
		}
		parts = append(parts, location)
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	if e.Output != "" {
		result += "\n" + strings.TrimSpace(e.Output)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithTask records the task that failed.
func (e *PipelineError) WithTask(task string) *PipelineError {
	e.Task = task

	return e
}

// WithVariant records the family and variant being processed.
func (e *PipelineError) WithVariant(family, variant string) *PipelineError {
	e.Family = family
	e.Variant = variant

	return e
}

// WithPath records the file or directory involved.
func (e *PipelineError) WithPath(path string) *PipelineError {
	e.Path = path

	return e
}

// WithOutput attaches captured process output.
func (e *PipelineError) WithOutput(output []byte) *PipelineError {
	e.Output = string(output)

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// IsConfigError reports whether err is a configuration error.
// Configuration errors never abort a build.
func IsConfigError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeConfig
	}

	return false
}

// IsIOError checks if an error is an I/O or stream failure.
func IsIOError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeIO
	}

	return false
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeBuild
	}

	return false
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler reports errors that end a task chain.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err with the fields of its category.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var pe *PipelineError
	if !errors.As(err, &pe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch pe.Type {
	case ErrorTypeConfig, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Configuration error occurred",
			"type", pe.Type,
			"code", pe.Code)
	case ErrorTypeBuild:
		h.logger.Error(ctx, err, "Build error occurred",
			"type", pe.Type,
			"code", pe.Code,
			"task", pe.Task,
			"family", pe.Family,
			"variant", pe.Variant)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", pe.Type,
			"code", pe.Code,
			"task", pe.Task,
			"path", pe.Path)
	}
}

// Common error codes.
const (
	ErrCodeUnsupportedFamily = "ERR_UNSUPPORTED_FAMILY"
	ErrCodeMissingVariant    = "ERR_MISSING_VARIANT"
	ErrCodeCompileFailed     = "ERR_COMPILE_FAILED"
	ErrCodeMergeFailed       = "ERR_MERGE_FAILED"
	ErrCodeScriptFailed      = "ERR_SCRIPT_FAILED"
	ErrCodeCopyFailed        = "ERR_COPY_FAILED"
	ErrCodeCleanFailed       = "ERR_CLEAN_FAILED"
	ErrCodeOutputCollision   = "ERR_OUTPUT_COLLISION"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeCommandRejected   = "ERR_COMMAND_REJECTED"
	ErrCodeUnknownTask       = "ERR_UNKNOWN_TASK"
	ErrCodeBroadcastFailed   = "ERR_BROADCAST_FAILED"
	ErrCodeListenFailed      = "ERR_LISTEN_FAILED"
)

// ErrUnsupportedFamily creates the error reported for an unknown preprocessor family.
func ErrUnsupportedFamily(family string) *PipelineError {
	return NewConfigError(
		ErrCodeUnsupportedFamily,
		fmt.Sprintf("schema [%s] is not supported", family),
	)
}

// ErrMissingVariant creates the error reported when a compile call lacks a family or variant.
func ErrMissingVariant(family, variant string) *PipelineError {
	return NewConfigError(
		ErrCodeMissingVariant,
		fmt.Sprintf("missing family or variant - type: [%s] | variant: [%s]", family, variant),
	).WithVariant(family, variant)
}

// ErrCompileFailed wraps a failed preprocessor run.
func ErrCompileFailed(family, variant string, cause error) *PipelineError {
	return NewIOError(ErrCodeCompileFailed, "compiler failed", cause).
		WithVariant(family, variant)
}

// ErrOutputCollision reports two pipelines targeting the same output file.
func ErrOutputCollision(path string) *PipelineError {
	return NewIOError(
		ErrCodeOutputCollision,
		"library file would overwrite a compiled script",
		nil,
	).WithPath(path)
}

package schema

import "fmt"

// ErrorClass is the failure taxonomy that drives the pipeline's retry and
// fallback policy. Transient errors are retried with backoff, validation
// errors trigger the stage's deterministic fallback, fatal errors abort the
// whole run.
type ErrorClass string

const (
	ClassTransient  ErrorClass = "transient"
	ClassValidation ErrorClass = "validation"
	ClassFatal      ErrorClass = "fatal"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeTimeout       = "TIMEOUT_ERROR"
	ErrCodeRateLimit     = "RATE_LIMIT"
	ErrCodeAuth          = "AUTH_ERROR"
	ErrCodeConfig        = "CONFIG_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	ErrCodeNodeCeiling   = "NODE_CEILING_EXCEEDED"
	ErrCodeStageFailed   = "STAGE_FAILED"
	ErrCodeCancelled     = "CANCELLED"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
)

// classByCode maps error codes to their class. Codes not listed default to
// transient so the retry policy bounds them.
var classByCode = map[string]ErrorClass{
	ErrCodeValidation:    ClassValidation,
	ErrCodeCycleDetected: ClassValidation,
	ErrCodeNodeCeiling:   ClassValidation,
	ErrCodeAuth:          ClassFatal,
	ErrCodeConfig:        ClassFatal,
	ErrCodeTimeout:       ClassTransient,
	ErrCodeRateLimit:     ClassTransient,
	ErrCodeUpstream:      ClassTransient,
	ErrCodeStore:         ClassTransient,
}

// ForgeError is the structured error type for all pageforge operations.
type ForgeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ForgeError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] stage %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ForgeError) Unwrap() error {
	return e.Cause
}

// Class returns the error's taxonomy class derived from its code.
func (e *ForgeError) Class() ErrorClass {
	if c, ok := classByCode[e.Code]; ok {
		return c
	}
	return ClassTransient
}

// NewError creates a new ForgeError.
func NewError(code, message string) *ForgeError {
	return &ForgeError{Code: code, Message: message}
}

// NewErrorf creates a new ForgeError with a formatted message.
func NewErrorf(code, format string, args ...any) *ForgeError {
	return &ForgeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStage attaches a pipeline stage name to the error.
func (e *ForgeError) WithStage(stage string) *ForgeError {
	e.Stage = stage
	return e
}

// WithCause attaches an underlying cause.
func (e *ForgeError) WithCause(err error) *ForgeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ForgeError) WithDetails(details map[string]any) *ForgeError {
	e.Details = details
	return e
}

package errors

import (
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	// Closed error-kind set from the decision engine's error handling design.
	CodeInputInvalid        = "INPUT_INVALID"
	CodeDetectorUnavailable = "DETECTOR_UNAVAILABLE"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeCriticNumerical     = "CRITIC_NUMERICAL"
	CodeMemoryUpdateFailure = "MEMORY_UPDATE_FAILURE"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// InputInvalid reports malformed images, empty image lists, non-finite
// context entries, or a VLM payload that fails schema validation. It is
// surfaced to the caller rather than recovered.
func InputInvalid(message string) *AppError {
	return New(CodeInputInvalid, message)
}

// DetectorUnavailable reports a timeout or error from one detector. Recovered
// locally by the orchestrator (treated as an empty evidence record).
func DetectorUnavailable(detector string, cause error) *AppError {
	return &AppError{
		Code:    CodeDetectorUnavailable,
		Message: fmt.Sprintf("detector %q unavailable", detector),
		Cause:   cause,
	}
}

// StoreUnavailable reports a repository read/write failure. Calibration reads
// fall back to the conservative global stratum. A failed decision write is
// logged by the orchestrator and not retried or returned to the caller.
func StoreUnavailable(operation string, cause error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: fmt.Sprintf("store unavailable during %s", operation),
		Cause:   cause,
	}
}

// CriticNumerical reports a non-positive-definite critic matrix that could
// not be recovered by jitter regularization.
func CriticNumerical(message string) *AppError {
	return New(CodeCriticNumerical, message)
}

// MemoryUpdateFailure reports a failed update at one memory level. Isolated:
// it never blocks updates at other levels or the surrounding request.
func MemoryUpdateFailure(level int, cause error) *AppError {
	return &AppError{
		Code:    CodeMemoryUpdateFailure,
		Message: fmt.Sprintf("memory level %d update failed", level),
		Cause:   cause,
	}
}

// IsDetectorUnavailable reports whether err is a DetectorUnavailable AppError.
func IsDetectorUnavailable(err error) bool {
	return GetCode(err) == CodeDetectorUnavailable
}

// IsStoreUnavailable reports whether err is a StoreUnavailable AppError.
func IsStoreUnavailable(err error) bool {
	return GetCode(err) == CodeStoreUnavailable
}



package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrAssessmentNotFound = fmt.Errorf("%w: assessment", ErrNotFound)
	ErrStratumNotFound    = fmt.Errorf("%w: stratum", ErrNotFound)
	ErrMemoryLevelMissing = fmt.Errorf("%w: memory level", ErrNotFound)

	// Input validation errors
	ErrNonFiniteVector  = errors.New("context vector contains a non-finite entry")
	ErrWrongVectorLen   = errors.New("context vector has wrong length")
	ErrEmptyImageList   = errors.New("image reference list is empty")
	ErrSchemaViolation  = errors.New("payload does not conform to the expected schema")
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// Numerical errors
	ErrMatrixNotPD = errors.New("matrix is not positive definite")

	// Safety errors
	ErrSafetyVeto = errors.New("automate decision overridden by safety veto")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInputInvalid(err error) bool {
	return errors.Is(err, ErrNonFiniteVector) ||
		errors.Is(err, ErrWrongVectorLen) ||
		errors.Is(err, ErrEmptyImageList) ||
		errors.Is(err, ErrSchemaViolation)
}

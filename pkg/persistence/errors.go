package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrVariantNotFound indicates a variant was not found by the given identifier.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrEnvironmentNotFound indicates an environment was not found by name.
	ErrEnvironmentNotFound = errors.New("environment not found")

	// ErrInvalidVariant indicates a record is missing required fields.
	ErrInvalidVariant = errors.New("invalid variant")
)

// VariantError wraps variant-related errors with additional context.
type VariantError struct {
	Op        string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	VariantID string
	Err       error
	Message   string
}

func (e *VariantError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for variant %s: %s (%v)", e.Op, e.VariantID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for variant %s: %v", e.Op, e.VariantID, e.Err)
}

func (e *VariantError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for variant errors.
func (e *VariantError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewVariantError creates a new variant error with context. An optional message adds detail.
func NewVariantError(op, variantID string, err error, message ...string) *VariantError {
	e := &VariantError{
		Op:        op,
		VariantID: variantID,
		Err:       err,
	}

	if len(message) > 0 {
		e.Message = message[0]
	}

	return e
}

// IsVariantNotFound checks if an error indicates a variant was not found.
func IsVariantNotFound(err error) bool {
	return errors.Is(err, ErrVariantNotFound)
}

// IsEnvironmentNotFound checks if an error indicates an environment was not found.
func IsEnvironmentNotFound(err error) bool {
	return errors.Is(err, ErrEnvironmentNotFound)
}

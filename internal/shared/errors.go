package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the lifecycle engines. Every transition failure
// resolves to one of these so the HTTP layer can map it without inspecting
// module internals.
var (
	// ErrNotFound indicates the entity id is unknown or deleted.
	ErrNotFound = errors.New("not found")
	// ErrStateConflict indicates a transition attempted from a state that no
	// longer matches; recoverable by refetching the entity.
	ErrStateConflict = errors.New("state conflict")
	// ErrForbidden indicates the acting role does not permit the transition.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed or incomplete input to a transition.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError names the offending field or line item of a rejected input.
type ValidationError struct {
	Field  string
	Item   string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Item != "" && e.Field != "":
		return fmt.Sprintf("validation failed: item %s: %s: %s", e.Item, e.Field, e.Reason)
	case e.Item != "":
		return fmt.Sprintf("validation failed: item %s: %s", e.Item, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

// Unwrap makes ValidationError match ErrValidation under errors.Is.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validationf builds a field-level validation error.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ItemValidationf builds a validation error scoped to one line item.
func ItemValidationf(item, field, format string, args ...any) error {
	return &ValidationError{Item: item, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StateConflictf wraps ErrStateConflict with the observed state.
func StateConflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

// UserSafeMessage returns a message suitable for surfacing to the initiating
// user. Internal errors are collapsed to a generic sentence.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrStateConflict),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidCredentials):
		return err.Error()
	}
	return "an internal error occurred"
}

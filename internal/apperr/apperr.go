// Package apperr defines the error categories shared by the services:
// not-found, validation, policy, conflict and persistence. Callers match them
// with errors.Is; the structured types carry the details a handler needs to
// build a response.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a referenced customer, visit, voucher or
	// employee does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for missing or malformed input. Nothing has
	// been written when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrPolicy is returned when a limit or interval rule blocks an action.
	// It is an expected outcome, not a fault.
	ErrPolicy = errors.New("not eligible")

	// ErrConflict is returned when the current state forbids the operation,
	// e.g. redeeming a voucher that is no longer active.
	ErrConflict = errors.New("conflict")

	// ErrPersistence wraps storage failures during a multi-step write. The
	// whole operation has been rolled back.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PolicyError lists one human-readable reason per failing rule.
type PolicyError struct {
	Reasons []string
}

func (e *PolicyError) Error() string {
	return "not eligible: " + strings.Join(e.Reasons, "; ")
}

func (e *PolicyError) Unwrap() error { return ErrPolicy }

// VoucherStateError is returned when a voucher transition is attempted from a
// non-active status.
type VoucherStateError struct {
	Code       string
	Status     string
	RedeemedAt *time.Time
}

func (e *VoucherStateError) Error() string {
	switch e.Status {
	case "redeemed":
		if e.RedeemedAt != nil {
			return fmt.Sprintf("This voucher has already been redeemed on %s.", e.RedeemedAt.Format("Jan 02, 2006"))
		}
		return "This voucher has already been redeemed."
	case "expired":
		return "This voucher has expired or is no longer valid."
	}
	return fmt.Sprintf("voucher %s is %s", e.Code, e.Status)
}

func (e *VoucherStateError) Unwrap() error { return ErrConflict }

// Persistence marks err as a storage failure while keeping it in the chain.
func Persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsClientError reports whether err was caused by the request rather than the
// system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPolicy) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

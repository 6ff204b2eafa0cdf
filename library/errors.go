package library

import (
	"errors"
	"fmt"
)

// DomainError is an expected business-rule violation: duplicate key, quota
// exceeded, outstanding debt and the like. These are ordinary return values
// the caller can show to the user and retry with different input; they are
// never used for I/O or parse faults.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeQuotaExceeded   = "QUOTA_EXCEEDED"
	ErrCodeOutstandingDebt = "OUTSTANDING_DEBT"
	ErrCodeNoUnits         = "NO_UNITS"
)

func NewNotFoundError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidArgumentError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

func NewForbiddenError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func NewQuotaExceededError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeQuotaExceeded, Message: fmt.Sprintf(format, args...)}
}

func NewOutstandingDebtError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeOutstandingDebt, Message: fmt.Sprintf(format, args...)}
}

func NewNoUnitsError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeNoUnits, Message: fmt.Sprintf(format, args...)}
}

// IsDomain reports whether err is an expected business-rule violation as
// opposed to an I/O or parse fault.
func IsDomain(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// DomainCode returns the violation code, or "" for non-domain errors.
func DomainCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// UserMessage renders err for an end user: the bare message for domain
// errors, the full error text otherwise.
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

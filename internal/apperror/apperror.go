// Package apperror holds the error taxonomy shared by the catalog services.
// Validation and quota failures are structured values; everything else is a
// sentinel that callers match with errors.Is.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidation       = errors.New("validation failed")
	ErrQuotaExceeded    = errors.New("quota exceeded")
)

// Code classifies a single violation.
type Code string

const (
	CodeRequired          Code = "required"
	CodeTypeMismatch      Code = "type_mismatch"
	CodeInvalidOption     Code = "invalid_option"
	CodeOutOfRange        Code = "out_of_range"
	CodeInvalidDefinition Code = "invalid_definition"
	CodeDuplicateField    Code = "duplicate_field"
	CodeMissingOptions    Code = "missing_options"
	CodeUnknownType       Code = "unknown_type"
)

// Violation is one field-level problem.
type Violation struct {
	Field   string `json:"field"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ValidationError carries every violation found, never just the first one.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Field == "" {
			parts = append(parts, v.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add records a violation.
func (e *ValidationError) Add(field string, code Code, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// Has reports whether a violation with the given field and code was recorded.
func (e *ValidationError) Has(field string, code Code) bool {
	for _, v := range e.Violations {
		if v.Field == field && v.Code == code {
			return true
		}
	}
	return false
}

// OrNil returns nil when nothing was recorded so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}

// QuotaExceededError reports a denied admission with the limit that denied it.
type QuotaExceededError struct {
	Operation string  `json:"operation"`
	Limit     string  `json:"limit"`
	Max       int64   `json:"max"`
	Current   float64 `json:"current"`
}

func (e *QuotaExceededError) Error() string {
	if e.Limit == "" {
		return fmt.Sprintf("%s: %s denied", ErrQuotaExceeded, e.Operation)
	}
	return fmt.Sprintf("%s: %s denied by %s (max %d, current %g)", ErrQuotaExceeded, e.Operation, e.Limit, e.Max, e.Current)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// AsValidation unwraps a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsQuota unwraps a *QuotaExceededError from err.
func AsQuota(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

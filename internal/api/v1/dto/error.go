package dto

import "trove/internal/apperror"

// ErrorResponseDTO is the body of every non-2xx JSON response.
type ErrorResponseDTO struct {
	Error      string                       `json:"error"`
	Violations []apperror.Violation         `json:"violations,omitempty"`
	Quota      *apperror.QuotaExceededError `json:"quota,omitempty"`
}

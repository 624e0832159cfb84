package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"trove/internal/api/v1/dto"
	"trove/internal/apperror"
	"trove/internal/middleware"
)

const maxJSONBody = 1 << 20

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors to HTTP responses.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if ve, ok := apperror.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponseDTO{Error: "validation failed", Violations: ve.Violations})
		return
	}
	if qe, ok := apperror.AsQuota(err); ok {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponseDTO{Error: "quota exceeded", Quota: qe})
		return
	}
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponseDTO{Error: "not found"})
	case errors.Is(err, apperror.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponseDTO{Error: "forbidden"})
	case errors.Is(err, apperror.ErrStoreUnavailable):
		logger.Error().Err(err).Msg("Store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponseDTO{Error: "service unavailable"})
	default:
		logger.Error().Err(err).Msg("Unhandled error")
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponseDTO{Error: "internal error"})
	}
}

// decode reads a JSON body into dst and validates it. On failure the response
// has been written and false is returned.
func decode(w http.ResponseWriter, r *http.Request, v *validator.Validate, logger zerolog.Logger, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponseDTO{Error: "invalid JSON payload: " + err.Error()})
		return false
	}
	if err := v.Struct(dst); err != nil {
		writeError(w, logger, structViolations(err))
		return false
	}
	return true
}

// structViolations converts validator failures into a *apperror.ValidationError.
func structViolations(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &apperror.ValidationError{}
	for _, fe := range fieldErrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			ve.Add(field, apperror.CodeRequired, "%s is required", field)
		case "min", "max", "gte", "lte", "gt", "lt":
			ve.Add(field, apperror.CodeOutOfRange, "%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
		case "oneof":
			ve.Add(field, apperror.CodeInvalidOption, "%s must be one of %s", field, fe.Param())
		default:
			ve.Add(field, apperror.CodeTypeMismatch, "%s is not a valid %s", field, fe.Tag())
		}
	}
	return ve
}

// userID returns the authenticated user or writes 401.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponseDTO{Error: fmt.Sprintf(format, args...)})
}

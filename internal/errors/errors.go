package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinels used with Mark across the service
var (
	ErrNotFound           = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists      = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict    = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation         = new(ErrCodeValidation, "validation error")
	ErrInvalidPlanChange  = new(ErrCodeInvalidPlanChange, "invalid plan change")
	ErrUnauthenticated    = new(ErrCodeUnauthenticated, "unauthenticated")
	ErrPermissionDenied   = new(ErrCodePermissionDenied, "permission denied")
	ErrRateLimited        = new(ErrCodeRateLimited, "rate limited")
	ErrConfiguration      = new(ErrCodeConfiguration, "configuration error")
	ErrProvider           = new(ErrCodeProvider, "billing provider error")
	ErrAmbiguousOutcome   = new(ErrCodeAmbiguousOutcome, "ambiguous outcome")
	ErrPreviewUnavailable = new(ErrCodePreviewUnavailable, "preview unavailable")
	ErrDatabase           = new(ErrCodeDatabase, "database error")
	ErrSystem             = new(ErrCodeSystemError, "system error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:           http.StatusNotFound,
		ErrAlreadyExists:      http.StatusConflict,
		ErrVersionConflict:    http.StatusConflict,
		ErrValidation:         http.StatusBadRequest,
		ErrInvalidPlanChange:  http.StatusBadRequest,
		ErrUnauthenticated:    http.StatusUnauthorized,
		ErrPermissionDenied:   http.StatusForbidden,
		ErrRateLimited:        http.StatusTooManyRequests,
		ErrConfiguration:      http.StatusInternalServerError,
		ErrProvider:           http.StatusInternalServerError,
		ErrAmbiguousOutcome:   http.StatusInternalServerError,
		ErrPreviewUnavailable: http.StatusInternalServerError,
		ErrDatabase:           http.StatusInternalServerError,
		ErrSystem:             http.StatusInternalServerError,
	}
)

const (
	ErrCodeNotFound           = "not_found"
	ErrCodeAlreadyExists      = "already_exists"
	ErrCodeVersionConflict    = "version_conflict"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidPlanChange  = "invalid_plan_change"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodePermissionDenied   = "permission_denied"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeConfiguration      = "configuration_error"
	ErrCodeProvider           = "provider_error"
	ErrCodeAmbiguousOutcome   = "ambiguous_outcome"
	ErrCodePreviewUnavailable = "preview_unavailable"
	ErrCodeDatabase           = "database_error"
	ErrCodeSystemError        = "system_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict checks if an error is a version conflict error
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidPlanChange(err error) bool {
	return errors.Is(err, ErrInvalidPlanChange)
}

func IsAmbiguousOutcome(err error) bool {
	return errors.Is(err, ErrAmbiguousOutcome)
}

func IsPreviewUnavailable(err error) bool {
	return errors.Is(err, ErrPreviewUnavailable)
}

func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// HTTPStatusFromErr resolves the response status from the marked sentinel
func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}

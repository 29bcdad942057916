package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrValidation = errors.New("validation error")
)

// Cohort pipeline taxonomy. None of these abort a run.
var (
	// ErrInvalidMovement marks a movement discarded by normalization.
	ErrInvalidMovement = errors.New("invalid movement")
	// ErrFilteredOut marks a stay rejected by an eligibility predicate.
	ErrFilteredOut = errors.New("stay filtered out")
	// ErrMissingJoin marks a stay whose demographic or clinical join was absent.
	ErrMissingJoin = errors.New("missing join")
	// ErrOrderingViolation marks a negative gap beyond tolerance after sorting.
	ErrOrderingViolation = errors.New("ordering violation")
	// ErrGroupSkipped marks a patient/episode group abandoned after a failure.
	ErrGroupSkipped = errors.New("group skipped")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Anomaly describes a non-fatal problem attached to one patient/episode group.
type Anomaly struct {
	Kind      error  `json:"-"`
	Reason    string `json:"reason"`
	PatientID string `json:"patient_id"`
	EpisodeID string `json:"episode_id"`
	Detail    string `json:"detail,omitempty"`
}

func (a *Anomaly) Error() string {
	msg := fmt.Sprintf("%v (%s) patient=%s episode=%s", a.Kind, a.Reason, a.PatientID, a.EpisodeID)
	if a.Detail != "" {
		msg += ": " + a.Detail
	}
	return msg
}

func (a *Anomaly) Unwrap() error {
	return a.Kind
}

// NewAnomaly creates an anomaly of the given kind.
func NewAnomaly(kind error, reason, patientID, episodeID, detail string) *Anomaly {
	return &Anomaly{
		Kind:      kind,
		Reason:    reason,
		PatientID: patientID,
		EpisodeID: episodeID,
		Detail:    detail,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

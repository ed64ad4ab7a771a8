package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Survey domain errors. Conflict-class errors are kept distinguishable
// from validation-class errors because the caller's recovery path differs:
// conflicts redirect to the existing resource, validation errors are
// fixed and resubmitted.
var (
	ErrSurveyNotActive       = New("SURVEY_NOT_ACTIVE", http.StatusForbidden, "survey is not accepting responses")
	ErrSurveyNotStarted      = New("SURVEY_NOT_STARTED", http.StatusForbidden, "survey publication window has not opened")
	ErrSurveyEnded           = New("SURVEY_ENDED", http.StatusForbidden, "survey publication window has closed")
	ErrSurveyFrozen          = New("SURVEY_FROZEN", http.StatusConflict, "published surveys cannot be structurally edited")
	ErrInvalidTransition     = New("INVALID_TRANSITION", http.StatusConflict, "illegal survey lifecycle transition")
	ErrDuplicateSubmission   = New("DUPLICATE_SUBMISSION", http.StatusConflict, "a response already exists for this survey")
	ErrInviteUsed            = New("INVITE_ALREADY_USED", http.StatusConflict, "invite token has already been redeemed")
	ErrInviteExpired         = New("INVITE_EXPIRED", http.StatusForbidden, "invite token has expired")
	ErrInviteNotFound        = New("INVITE_NOT_FOUND", http.StatusNotFound, "invite token not recognised")
	ErrMissingRequiredAnswer = New("MISSING_REQUIRED_ANSWER", http.StatusBadRequest, "a required question was not answered")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

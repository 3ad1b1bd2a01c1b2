package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodePrecondition  = "PRECONDITION_FAILED"
	CodeValidation    = "VALIDATION_ERROR"
	CodeAuthFailed    = "AUTHENTICATION_FAILED"
	CodeRemote        = "REMOTE_REJECTED"
	CodeNoMeetingLink = "NO_MEETING_LINK"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeTimeout       = "TIMEOUT"
	CodeInternal      = "INTERNAL_ERROR"
)

// AppError is the error type surfaced to the user. Message is meant to be
// shown as is.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches field level details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// New creates an AppError with no cause.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError caused by err.
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Precondition reports that the user has to do something first.
func Precondition(message string) *AppError {
	return &AppError{Code: CodePrecondition, Message: message}
}

// Validation reports invalid input; details are keyed by field.
func Validation(message string, details map[string]any) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Details: details}
}

// AuthFailed reports a sign-in that could not be completed.
func AuthFailed(err error) *AppError {
	return &AppError{Code: CodeAuthFailed, Message: "Authentication failed", Err: err}
}

// Remote reports a non-success answer from the provider or the platform API.
// message is the server's own text and may be empty.
func Remote(status int, message string) *AppError {
	return &AppError{Code: CodeRemote, Message: message, HTTPStatus: status}
}

// NoMeetingLink reports a meeting without a joinable link.
func NoMeetingLink(appointmentID string) *AppError {
	return &AppError{
		Code:    CodeNoMeetingLink,
		Message: "No meeting link available",
		Details: map[string]any{"appointment_id": appointmentID},
	}
}

// Unavailable reports a service that could not be reached.
func Unavailable(service string, err error) *AppError {
	return &AppError{
		Code:    CodeUnavailable,
		Message: fmt.Sprintf("%s is temporarily unavailable", service),
		Err:     err,
	}
}

// Timeout reports a service that did not answer in time.
func Timeout(service string, err error) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    fmt.Sprintf("%s did not answer in time", service),
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// Transport classifies a failed round trip: deadline expiry becomes TIMEOUT,
// anything else SERVICE_UNAVAILABLE.
func Transport(service string, err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(service, err)
	}
	return Unavailable(service, err)
}

// As returns the first AppError in the chain of err.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an AppError with code.
func Is(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// UserMessage picks the text to show for a failed attempt: the remote
// message verbatim when there is one, the AppError message for local
// failures, fallback otherwise.
func UserMessage(err error, fallback string) string {
	appErr, ok := As(err)
	if !ok || appErr.Message == "" {
		return fallback
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeInternal:
		return fallback
	}
	return appErr.Message
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewWithDetails(code int, message, details string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	ErrBadRequest          = New(http.StatusBadRequest, "Bad request")
	ErrUnauthorized        = New(http.StatusUnauthorized, "Unauthorized")
	ErrForbidden           = New(http.StatusForbidden, "Forbidden")
	ErrNotFound            = New(http.StatusNotFound, "Not found")
	ErrConflict            = New(http.StatusConflict, "Conflict")
	ErrInternalServerError = New(http.StatusInternalServerError, "Internal server error")
	ErrServiceUnavailable  = New(http.StatusServiceUnavailable, "Service unavailable")

	ErrInstanceNotConnected = New(http.StatusServiceUnavailable, "WhatsApp instance not connected")
	ErrSendFailed           = New(http.StatusInternalServerError, "Failed to send WhatsApp message")
	ErrInvalidPhoneNumber   = New(http.StatusBadRequest, "Invalid phone number")

	ErrChatwootNotConfigured = New(http.StatusServiceUnavailable, "Chatwoot not configured")
	ErrChatwootAPIError      = New(http.StatusInternalServerError, "Chatwoot API error")
)

// TransientError marks a failure worth retrying, such as a timeout or a
// remote 5xx. Unwrap-compatible.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// PermanentError marks a failure that retrying cannot fix, such as a
// remote 403 or a rejected payload.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure in %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Op: op, Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ErrMappingNotFound means an event references a message this bridge never
// recorded. Callers drop the event and log at debug level.
var ErrMappingNotFound = errors.New("message mapping not found")

// ErrRaceLost means another worker created the resource first. Callers
// re-read instead of failing.
var ErrRaceLost = errors.New("lost creation race")

func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewWithDetails(http.StatusInternalServerError, "Internal server error", err.Error())
}

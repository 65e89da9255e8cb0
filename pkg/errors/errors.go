package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed client error. Status carries the upstream HTTP
// status when the failure came from the report server.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
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

// Is matches errors sharing the same code so callers can test against the
// predefined sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for the report client.
var (
	ErrReferenceData = New("REFERENCE_DATA_ERROR", http.StatusBadGateway, "failed to load corporate accounts")
	ErrValidation    = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrTransport     = New("TRANSPORT_ERROR", http.StatusBadGateway, "report request failed")
	ErrSave          = New("SAVE_ERROR", http.StatusInternalServerError, "failed to save report")
	ErrNotReady      = New("NOT_READY", http.StatusConflict, "controller is not ready")
	ErrInFlight      = New("SUBMISSION_IN_FLIGHT", http.StatusConflict, "a report request is already in flight")
	ErrDisposed      = New("DISPOSED", http.StatusGone, "controller disposed")
	ErrNotFound      = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrInternal      = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal error")
	ErrCacheMiss     = New("CACHE_MISS", http.StatusNotFound, "cache miss")
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
	if err.Fields != nil {
		clone.Fields = make(map[string]string, len(err.Fields))
		for k, v := range err.Fields {
			clone.Fields[k] = v
		}
	}
	return &clone
}

// WithField returns a copy of err carrying a per-field message.
func WithField(err *Error, field, message string) *Error {
	clone := Clone(err, "")
	if clone == nil {
		return nil
	}
	if clone.Fields == nil {
		clone.Fields = map[string]string{}
	}
	clone.Fields[field] = message
	return clone
}

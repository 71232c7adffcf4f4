package common

import (
	"errors"
	"fmt"
)

// Error kinds returned by the job controller and the batch worker.
var (
	ErrValidation          = errors.New("validation error")
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvalidState        = errors.New("invalid state")
	ErrItemProcessing      = errors.New("item processing failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Storage signals.
var (
	ErrActiveJobExists = errors.New("an active job already exists")
	ErrLeaseLost       = errors.New("batch lease lost")
)

type APIError struct {
	Status  int            `json:"-"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
	Err     error          `json:"-"`
}

func (e APIError) Error() string {
	return e.Message
}

func (e APIError) Unwrap() error {
	return e.Err
}

func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Kindf is Errf with an error kind attached, so callers can match it with errors.Is.
func Kindf(status int, kind error, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...), Err: kind}
}

// WithFields returns a copy of e carrying fields.
func (e APIError) WithFields(fields map[string]any) APIError {
	e.Fields = fields
	return e
}

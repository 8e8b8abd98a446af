package dispatch

import (
	"fmt"
	"net/http"
)

// ErrorClass groups request failures by how they are answered.
type ErrorClass string

const (
	// ErrorClassValidation is a malformed request header (400).
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassAccess is a refused content item (403).
	ErrorClassAccess ErrorClass = "access"

	// ErrorClassRateLimit is a client over its request budget (429).
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNotFound is an unknown content item (404).
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassConversion is a converter failure (500).
	ErrorClassConversion ErrorClass = "conversion"
)

// Response bodies for error results.
const (
	MessageBadAccept       = "Bad Request: malformed Accept header"
	MessageAccessDenied    = "Access denied"
	MessageRateLimited     = "Rate limit exceeded. Please try again later."
	MessageNotFound        = "Not Found"
	MessageConversionError = "Internal Server Error: markdown conversion failed"
)

// Error is a terminal request failure.
type Error struct {
	Class   ErrorClass
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v", e.Class, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Class, e.Status, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with the status and message of class.
func NewError(class ErrorClass, err error) *Error {
	e := &Error{Class: class, Err: err}
	switch class {
	case ErrorClassValidation:
		e.Status, e.Message = http.StatusBadRequest, MessageBadAccept
	case ErrorClassAccess:
		e.Status, e.Message = http.StatusForbidden, MessageAccessDenied
	case ErrorClassRateLimit:
		e.Status, e.Message = http.StatusTooManyRequests, MessageRateLimited
	case ErrorClassNotFound:
		e.Status, e.Message = http.StatusNotFound, MessageNotFound
	default:
		e.Status, e.Message = http.StatusInternalServerError, MessageConversionError
	}
	return e
}

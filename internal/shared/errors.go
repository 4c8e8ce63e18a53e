package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique key already holds the submitted value.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrProtected indicates the row is on a protected-id allow-list and cannot be deleted.
	ErrProtected = errors.New("protected entry")
	// ErrUnavailable indicates the database could not complete the request; the caller may retry.
	ErrUnavailable = errors.New("database unavailable")
	// ErrValidation indicates submitted form data failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

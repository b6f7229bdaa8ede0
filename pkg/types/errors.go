package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Authentication and authorization errors.
var (
	ErrEmailNotFound    = errors.New("email not found")
	ErrWrongPassword    = errors.New("wrong password")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("admin access required")
	ErrNotAuthenticated = errors.New("not logged in")
)

// Resource errors reported by the backend.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("name already in use")
	ErrTableAlreadyExists = errors.New("table already exists")
)

// Backend error texts that identify a specific failure.
const (
	codeEmailNotFound      = "EmailNotFound"
	codeWrongPassword      = "WrongPassword"
	codeTableAlreadyExists = "TableAlreadyExists"
)

// APIError is a failure reported by the backend: a non-success status code
// together with the body text it returned.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

// Is maps the status code and the backend error text onto the sentinel
// errors of this package.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrEmailNotFound:
		return strings.Contains(e.Message, codeEmailNotFound)
	case ErrWrongPassword:
		return strings.Contains(e.Message, codeWrongPassword)
	case ErrTableAlreadyExists:
		return strings.Contains(e.Message, codeTableAlreadyExists)
	}
	return false
}

// DecodeError reports a response body that does not have the expected shape.
// It is never a business error: errors.Is against the sentinels above is
// always false.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

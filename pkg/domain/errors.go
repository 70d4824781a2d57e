package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthReason discriminates authentication failures without leaking token or
// secret material into responses.
type AuthReason string

const (
	AuthMissingToken     AuthReason = "missing bearer token"
	AuthMalformedToken   AuthReason = "malformed token"
	AuthExpiredSignature AuthReason = "token expired"
	AuthInvalidSignature AuthReason = "invalid token signature"
	AuthUnavailable      AuthReason = "authentication service unavailable"
)

// AuthError is an authentication failure. AuthUnavailable maps to 500, every
// other reason to 401.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string { return string(e.Reason) }

// HTTPStatus returns the response code for this authentication failure.
func (e *AuthError) HTTPStatus() int {
	if e.Reason == AuthUnavailable {
		return http.StatusInternalServerError
	}
	return http.StatusUnauthorized
}

// ValidationError is a client-caused input failure, always a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ContentError marks a payload that is structurally unusable: wrong binary
// signature, oversize input, page count over the limit. Never retried.
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string { return e.Reason }

// TransportError wraps a network-level failure (timeout, refused connection,
// DNS, TLS). Retryable until the attempt budget runs out.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError carries an HTTP status from a collaborator. Only 500, 502, 503
// and 504 are retryable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// StageError names the pipeline stage that failed terminally; maps to 422.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// ErrResourceExhausted aborts retries immediately regardless of budget.
var ErrResourceExhausted = errors.New("resource exhausted")

// NewStageError wraps err with the failing stage's name.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// Package domainerrors carries coded errors from services to transports.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into an *Error with a Code so handlers can choose status and message
// without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInternal           Code = "internal_error"
	CodeTimeout            Code = "timeout"
	CodeRateLimited        Code = "rate_limited"
	CodeInvariantViolation Code = "invariant_violation"

	// Authentication outcomes.
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeAccountInactive    Code = "account_inactive"
	CodeAccountUnverified  Code = "account_unverified"
	CodeNoSecretSet        Code = "no_secret_set"

	// Token outcomes. CodeTokenRevoked covers every blacklist shape.
	CodeTokenExpired   Code = "token_expired"
	CodeTokenMalformed Code = "token_malformed"
	CodeTokenRevoked   Code = "token_revoked"

	// Infrastructure.
	CodeConfigurationMissing Code = "configuration_missing"
	CodeCacheUnavailable     Code = "cache_unavailable"
)

// Error is a domain error with a stable code and a safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code to an underlying error. The cause stays reachable via
// errors.Unwrap but never leaks into Message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same code and message, which lets tests
// use require.ErrorIs against a freshly constructed error.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

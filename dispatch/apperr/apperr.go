// Package apperr defines the typed errors every dispatch/* package returns
// instead of bare fmt.Errorf/skerr.Fmt, so dispatch/web's central error
// handler (grounded on golden/go/web/web.go's httputils.ReportError call
// sites, one per handler, each picking its own http.StatusXxx) can map any
// error returned from a domain package to the right HTTP status and a
// stable machine-readable code without the web layer knowing domain
// internals.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable identifier for a class of error,
// independent of the human-readable message (which may include
// interpolated IDs and is not meant to be matched on).
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeAuth               Code = "auth_error"
	CodeTenantViolation    Code = "tenant_violation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeRateLimited        Code = "rate_limited"
	CodeExternalUnavailable Code = "external_unavailable"
	CodeInternal           Code = "internal_error"
)

// Error is the typed error every dispatch/* package should return for a
// failure a caller might want to branch on (as opposed to an unexpected
// internal failure, which should still be wrapped via skerr and returned
// plain - see Internal below).
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code dispatch/web should respond with for
// this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeTenantViolation, CodeNotFound:
		// Cross-tenant reads are deliberately reported as 404, not 403, so a
		// probing caller cannot distinguish "not yours" from "doesn't
		// exist" (see dispatch/tenant).
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeExternalUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newErr(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Validation reports that caller-supplied input failed a domain invariant
// (e.g. a malformed request body, a missing required field, or a status
// the HTTP Surface does not let a caller set directly).
func Validation(format string, args ...interface{}) *Error {
	return newErr(CodeValidation, nil, format, args...)
}

// Auth reports a failed authentication or authorization check.
func Auth(format string, args ...interface{}) *Error {
	return newErr(CodeAuth, nil, format, args...)
}

// TenantViolation reports an attempt to read or write a row belonging to a
// different company than the caller's AuthUser.CompanyID.
func TenantViolation(format string, args ...interface{}) *Error {
	return newErr(CodeTenantViolation, nil, format, args...)
}

// NotFound reports that no row matching the request exists (within the
// caller's tenant scope).
func NotFound(format string, args ...interface{}) *Error {
	return newErr(CodeNotFound, nil, format, args...)
}

// Conflict reports that the request is well-formed but cannot be applied
// given the current state (e.g. double-assigning an already-assigned job).
func Conflict(format string, args ...interface{}) *Error {
	return newErr(CodeConflict, nil, format, args...)
}

// RateLimited reports that a caller has exceeded a rate limit (see
// dispatch/web's use of golang.org/x/time/rate).
func RateLimited(format string, args ...interface{}) *Error {
	return newErr(CodeRateLimited, nil, format, args...)
}

// ExternalUnavailable reports that an external dependency (the routing or
// geocoding provider) failed or timed out, and the fallback path was also
// exhausted.
func ExternalUnavailable(cause error, format string, args ...interface{}) *Error {
	return newErr(CodeExternalUnavailable, cause, format, args...)
}

// As is a thin wrapper over errors.As for pulling an *Error out of a wrapped
// error chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

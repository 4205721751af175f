package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. The code, not the message, decides how callers
// and the transport layer react to a failure.
type Code string

const (
	// CodeBadFormat: a required field in a request or token claim set is missing
	// or malformed.
	CodeBadFormat Code = "bad_format"
	// CodeSecurity: a signature, nonce, reference, token or subject/issuer/holder
	// mismatch, or a credential outside its validity window. All security-relevant
	// mismatches share this code so a caller cannot probe which check failed.
	CodeSecurity Code = "security"
	// CodeNotImplemented: an unsupported interaction-start mechanism.
	CodeNotImplemented Code = "not_implemented"
	// CodeMissingResource: lookup by id or state returned nothing.
	CodeMissingResource Code = "missing_resource"
	// CodeUnauthorized: an opaque bearer token does not resolve to a known participant.
	CodeUnauthorized Code = "unauthorized"
	// CodeDatabase: persistence failure, wrapping the underlying cause.
	CodeDatabase Code = "database"
	// CodeVault: key-store or signing failure, wrapping the underlying cause.
	CodeVault Code = "vault"
	// CodeInternal: anything else.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Services return these; stores return sentinels
// (pkg/sentinel) which services translate.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. If the cause is
// already a domain error its code is preserved.
func Wrap(err error, code Code, message string) *Error {
	var de *Error
	if errors.As(err, &de) {
		code = de.Code
	}
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is lets callers match by code: errors.Is(err, domainerrors.New(code, "")).
func (e *Error) Is(target error) bool {
	var de *Error
	if !errors.As(target, &de) {
		return false
	}
	return e.Code == de.Code
}

// ToHTTPStatus maps a code onto the status the transport layer should answer with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadFormat:
		return http.StatusBadRequest
	case CodeSecurity:
		return http.StatusForbidden
	case CodeNotImplemented:
		return http.StatusNotImplemented
	case CodeMissingResource:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Package domainerrors carries the coded error taxonomy shared by the domain
// services and the transport layer. Services return these; handlers translate
// them to HTTP statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure. Every error crossing a service boundary
// carries exactly one code.
type Code string

const (
	// CodeUnauthorized: the caller is not authenticated as the principal the
	// operation names.
	CodeUnauthorized Code = "unauthorized"

	// CodeNotFound: a referenced entity (schema, attestation) is absent.
	CodeNotFound Code = "not_found"

	// CodeConflict: creation collided with an existing identifier.
	CodeConflict Code = "conflict"

	// CodePolicyViolation: the operation is forbidden by schema policy or an
	// ownership rule (issuer-only mode, non-revocable schema, wrong revoker).
	CodePolicyViolation Code = "policy_violation"

	// CodeSequencing: the submitted nonce does not extend the attester's
	// counter by exactly one.
	CodeSequencing Code = "sequencing_violation"

	// CodeInvalidInput: malformed input rejected at a trust boundary.
	CodeInvalidInput Code = "invalid_input"

	// CodeInternal: infrastructure fault; safe default for unclassified errors.
	CodeInternal Code = "internal"
)

// Error is the concrete coded error type. Message is a stable machine-readable
// reason (snake_case), not free prose, so callers and tests can assert on the
// specific failure kind.
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

// New builds a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// HasMessage reports whether err carries the given reason string. Used by
// tests and callers that need to tell apart failures sharing a code (e.g.
// schema_not_found vs attestation_not_found).
func HasMessage(err error, message string) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Message == message
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in a domain service.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer writes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeSequencing:
		return http.StatusConflict
	case CodePolicyViolation:
		return http.StatusForbidden
	case CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

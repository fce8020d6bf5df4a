// Package domainerrors defines the domain error taxonomy shared across
// services. Stores return sentinel errors for infrastructure facts; services
// translate them into one of these coded errors before they cross a package
// boundary, so transport layers never leak storage detail.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure. Codes are stable strings: they
// appear in API responses and audit events and must not be renamed.
type Code string

const (
	// Registration failures.
	CodeAlreadyRegistered Code = "already_registered"
	CodeCrossRoleConflict Code = "cross_role_conflict"

	// Authorization failures.
	CodeNotVerified      Code = "not_verified"
	CodeRejected         Code = "rejected"
	CodeNotAdmin         Code = "not_admin"
	CodeNotOwner         Code = "not_owner"
	CodeAccessNotGranted Code = "access_not_granted"

	// Crypto failures. Always fail-closed: a wrong key yields
	// CodeDecryptionFailed, never garbled plaintext.
	CodeDecryptionFailed    Code = "decryption_failed"
	CodeKeyDerivationFailed Code = "key_derivation_failed"

	// Network / infrastructure failures.
	CodeSubmitFailed Code = "submit_failed"
	CodeNotFound     Code = "not_found"

	// Request handling.
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal"
)

// DomainError carries a stable code alongside a human-readable message and an
// optional wrapped cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap annotates err with a domain code while preserving the cause chain.
func Wrap(err error, code Code, message string) error {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the domain code from err, defaulting to CodeInternal for
// errors that never passed through a service translation.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotVerified, CodeRejected, CodeNotAdmin, CodeNotOwner, CodeAccessNotGranted:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyRegistered, CodeCrossRoleConflict:
		return http.StatusConflict
	case CodeDecryptionFailed, CodeKeyDerivationFailed:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

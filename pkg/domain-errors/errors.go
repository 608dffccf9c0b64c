// Package domainerrors carries coded errors across the service boundary so the
// HTTP layer can map them to status codes without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeIllegalTransition  Code = "illegal_transition"
	CodeTenantScope        Code = "tenant_scope_violation"
	CodeChainBroken        Code = "chain_broken"
	CodeIntegrity          Code = "integrity_failure"
	CodeRetentionViolation Code = "retention_violation"
	CodeLegalHold          Code = "legal_hold"
	CodeDeliveryExhausted  Code = "delivery_exhausted"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. Wrap an underlying cause with Wrap so callers
// can still use errors.Is/errors.As on the chain.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the domain error code, defaulting to CodeInternal for
// errors that did not originate in domain logic.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

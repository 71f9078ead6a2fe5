// Package syncerr defines the error taxonomy shared by the sync engine.
//
// Fatal codes (SourceUnavailable, ValidationFailed, LockfileGateBlocked)
// abort a sync; the rest degrade to warnings collected on the sync result.
// Every fatal error carries a remediation hint so the operator knows the
// exact flag or command that unblocks them.
package syncerr

import (
	"errors"
	"fmt"
)

// Code categorizes sync errors.
type Code string

const (
	// CodeSourceUnavailable indicates a remote fetch failed with no usable
	// cache entry. Recoverable by retry or --offline with a warm cache.
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"

	// CodeManifestNotFound indicates a declared pack source has no pack
	// manifest. Recoverable: the caller falls back to plain-file handling.
	CodeManifestNotFound Code = "MANIFEST_NOT_FOUND"

	// CodeValidationFailed indicates the merged bundle violates its
	// invariants. Fatal unless --force.
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// CodeExporterNotFound indicates an adapter's handler could not be
	// loaded. Non-fatal: the adapter is skipped with a warning.
	CodeExporterNotFound Code = "EXPORTER_NOT_FOUND"

	// CodeLockfileGateBlocked indicates the allow-list gate rejected the
	// result hash in strict mode. Fatal unless approved or --force.
	CodeLockfileGateBlocked Code = "LOCKFILE_GATE_BLOCKED"

	// CodeParseFailed indicates an edited agent file could not be parsed
	// during two-way sync. Non-fatal: that file's edits are skipped.
	CodeParseFailed Code = "PARSE_FAILED"
)

// Error is a categorized sync error with an optional remediation hint.
type Error struct {
	Code        Code
	Message     string
	Remediation string
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Remediation != "" {
		msg += " (" + e.Remediation + ")"
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// WithRemediation attaches a remediation hint and returns the error.
func (e *Error) WithRemediation(format string, args ...any) *Error {
	e.Remediation = fmt.Sprintf(format, args...)
	return e
}

// CodeOf returns the code of err if it is (or wraps) an *Error, else "".
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

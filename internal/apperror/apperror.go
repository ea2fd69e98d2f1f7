// Package apperror defines the error taxonomy shared by every layer.
//
// Each failure is an *AppError wrapping one sentinel. Callers match on the
// sentinel with errors.Is and read the human-readable parts with errors.As.
// Only the HTTP layer decides which status code a sentinel maps to.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Submission rejected before execution.
	ErrSyntax           = errors.New("syntax error")
	ErrDisallowedImport = errors.New("disallowed import")
	ErrDisallowedCall   = errors.New("disallowed call")

	// Submission ran but did not succeed.
	ErrExecution = errors.New("execution error")
	ErrTimeout   = errors.New("timeout")
	ErrCancelled = errors.New("cancelled")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field or identifier causing the error
	Detail  string // Optional: verbatim diagnostic text (parser message, captured stderr)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned when a protected operation has no valid credentials.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// SyntaxError reports a submission the parser could not read.
// detail carries the parser's own message.
func SyntaxError(detail string) *AppError {
	return &AppError{
		Err:     ErrSyntax,
		Message: "code could not be parsed",
		Detail:  detail,
	}
}

// DisallowedImport reports an import whose top-level module is not allow-listed.
// module is the name exactly as it appears in the submission.
func DisallowedImport(module string) *AppError {
	return &AppError{
		Err:     ErrDisallowedImport,
		Message: fmt.Sprintf("import not allowed: %s", module),
		Field:   module,
	}
}

// DisallowedCall reports a call to a deny-listed built-in.
func DisallowedCall(name string) *AppError {
	return &AppError{
		Err:     ErrDisallowedCall,
		Message: fmt.Sprintf("unsafe function usage: %s", name),
		Field:   name,
	}
}

// ExecutionFailed reports a child process that exited non-zero.
// stderr is kept verbatim in Detail.
func ExecutionFailed(stderr string) *AppError {
	return &AppError{
		Err:     ErrExecution,
		Message: "code exited with an error",
		Detail:  stderr,
	}
}

// Timeout reports a child process killed after running longer than limit.
func Timeout(limit time.Duration) *AppError {
	return &AppError{
		Err:     ErrTimeout,
		Message: fmt.Sprintf("execution exceeded the %s time limit", limit),
	}
}

// Cancelled reports a child process killed because the caller gave up.
func Cancelled() *AppError {
	return &AppError{
		Err:     ErrCancelled,
		Message: "execution was cancelled",
	}
}

var kinds = []struct {
	err  error
	kind string
}{
	{ErrValidation, "validation_error"},
	{ErrSyntax, "syntax_error"},
	{ErrDisallowedImport, "disallowed_import"},
	{ErrDisallowedCall, "disallowed_call"},
	{ErrExecution, "execution_error"},
	{ErrTimeout, "timeout"},
	{ErrCancelled, "cancelled"},
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrForbidden, "forbidden"},
	{ErrUnauthorized, "unauthorized"},
}

// Kind returns the stable snake_case name of err's sentinel, used in API
// responses and stored on failed runs. Unrecognised errors are "internal_error".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal_error"
}

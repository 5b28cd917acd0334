// Package errors provides error types with actionable suggestions for
// npx-scripts. Errors carry a Kind sentinel so callers can branch with
// errors.Is, plus optional details that the CLI renders for the user.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel kinds for use with errors.Is().
var (
	// ErrParse indicates a directive line is absent or malformed.
	ErrParse = errors.New("parse error")
	// ErrValidation indicates an installed manifest does not match the reference.
	ErrValidation = errors.New("validation mismatch")
	// ErrInstall indicates the package install command failed.
	ErrInstall = errors.New("install error")
	// ErrIO indicates a filesystem operation failed.
	ErrIO = errors.New("io error")
	// ErrTimeout indicates an install exceeded its deadline.
	ErrTimeout = errors.New("timeout error")
	// ErrConfig indicates a configuration error.
	ErrConfig = errors.New("configuration error")
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("not found")
)

// Error is the base error type for npx-scripts errors.
type Error struct {
	// Kind is the category of error (e.g., ErrInstall, ErrIO).
	Kind error
	// Message is the human-readable, single-line error message.
	Message string
	// Suggestion provides actionable advice for resolving the error.
	Suggestion string
	// Cause is the underlying error that caused this error.
	Cause error
	// Details provides additional context (e.g., module, path, exit code).
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Kind
}

// Is reports whether the error's kind matches target.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Format returns a multi-line message with details and the suggestion.
func (e *Error) Format() string {
	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(e.Error())
	sb.WriteString("\n")

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, e.Details[k]))
		}
	}

	if e.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(e.Suggestion)
		sb.WriteString("\n")
	}

	return sb.String()
}

// WithDetails adds a detail to the error.
func (e *Error) WithDetails(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause of the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates a new Error with the given kind and message.
func New(kind error, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// Wrap wraps an existing error with a kind and message.
func Wrap(err error, kind error, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   err,
	}
}

// WithSuggestion creates a new error with a suggestion.
func WithSuggestion(kind error, message, suggestion string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Message returns the user-facing single-line message of err. For *Error
// values the cause is omitted, since it usually repeats raw tool output.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

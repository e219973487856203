package errors

import (
	"errors"
	"fmt"
)

// SearchError is the structured error type for searchkit.
// It carries enough context for callers to decide whether the index or the
// query is at fault, and for the CLI to render a useful message.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_202_LOCK_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Lock, Query, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *SearchError) WithDetail(key, value string) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SearchError) WithSuggestion(suggestion string) *SearchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SearchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SearchError {
	return &SearchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SearchError from an existing error.
// An error that already carries a code is returned unchanged.
func Wrap(code string, err error) *SearchError {
	if err == nil {
		return nil
	}
	var se *SearchError
	if errors.As(err, &se) {
		return se
	}
	return New(code, err.Error(), err)
}

// ConfigError creates an InvalidConfiguration error.
func ConfigError(message string, cause error) *SearchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an IOFailure error.
func IOError(message string, cause error) *SearchError {
	return New(ErrCodeIOFailure, message, cause)
}

// LockTimeoutError creates a LockTimeout error.
func LockTimeoutError(message string, cause error) *SearchError {
	return New(ErrCodeLockTimeout, message, cause)
}

// ParseError creates a query ParseError.
func ParseError(message string, cause error) *SearchError {
	return New(ErrCodeQueryParse, message, cause)
}

// StateError creates an error for operations invoked without an open handle.
func StateError(message string) *SearchError {
	return New(ErrCodeState, message, nil)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *SearchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SearchError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// IsIndexUnavailable reports whether err means the index could not be used
// (bad configuration, storage failure, or lock contention).
func IsIndexUnavailable(err error) bool {
	switch GetCategory(err) {
	case CategoryConfig, CategoryIO, CategoryLock:
		return true
	}
	return false
}

// IsQueryError reports whether err was caused by the query itself.
func IsQueryError(err error) bool {
	return GetCategory(err) == CategoryQuery
}

// GetCode extracts the error code from a SearchError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SearchError anywhere in the chain.
func GetCategory(err error) Category {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// Package errors provides structured error handling for searchkit.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and lock errors
//   - 4XX: Query errors
//   - 5XX: Internal and state errors
//
// Configuration, storage and lock failures all mean the index is unavailable.
// Query failures mean the request itself was bad. Callers tell them apart with
// IsIndexUnavailable and IsQueryError.
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryLock indicates writer lock contention errors.
	CategoryLock Category = "LOCK"
	// CategoryQuery indicates malformed or failing queries.
	CategoryQuery Category = "QUERY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage and lock errors (200-299)
	ErrCodeIOFailure   = "ERR_201_IO_FAILURE"
	ErrCodeLockTimeout = "ERR_202_LOCK_TIMEOUT"
	ErrCodeLockRelease = "ERR_203_LOCK_RELEASE"

	// Query errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryParse   = "ERR_403_QUERY_PARSE"
	ErrCodeQueryTooDeep = "ERR_405_QUERY_TOO_DEEP"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeState        = "ERR_502_STATE"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	switch code {
	case ErrCodeLockTimeout, ErrCodeLockRelease:
		return CategoryLock
	case ErrCodeSearchFailed:
		return CategoryQuery
	}

	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "102" from "ERR_102_CONFIG_INVALID")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeLockTimeout:
		return true
	default:
		return false
	}
}

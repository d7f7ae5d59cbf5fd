package errors

import (
	"errors"
	"fmt"
)

// RagError is the structured error type for ragpipe.
// It provides rich context for error handling, logging, and user presentation.
type RagError struct {
	// Code is the unique error code (e.g., "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
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
func (e *RagError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RagError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RagError.
func (e *RagError) Is(target error) bool {
	if t, ok := target.(*RagError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RagError) WithDetail(key, value string) *RagError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *RagError) WithSuggestion(suggestion string) *RagError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RagError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RagError {
	return &RagError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new RagError with a formatted message.
func Newf(code string, format string, args ...any) *RagError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a RagError from an existing error.
// The error's message becomes the RagError message.
func Wrap(code string, err error) *RagError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error. Always fatal, raised
// before any index mutation.
func ConfigError(message string, cause error) *RagError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation error. Fatal to a single item,
// reported, never aborts a batch.
func ValidationError(message string, cause error) *RagError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ProviderError creates a provider-unavailable error. Retryable with
// backoff at batch-item granularity.
func ProviderError(message string, cause error) *RagError {
	return New(ErrCodeProviderUnavailable, message, cause)
}

// InconsistentStateError creates an index-state inconsistency error.
// Detected opportunistically and self-healed by re-indexing the
// affected document.
func InconsistentStateError(message string, cause error) *RagError {
	return New(ErrCodeInconsistentState, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a RagError with Retryable flag set.
func IsRetryable(err error) bool {
	var re *RagError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsCategory checks if an error belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var re *RagError
	if errors.As(err, &re) {
		return re.Category == cat
	}
	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return IsCategory(err, CategoryConfig) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsCategory(err, CategoryValidation) }

// IsProviderUnavailable reports whether err is a provider availability error.
func IsProviderUnavailable(err error) bool { return IsCategory(err, CategoryProvider) }

// IsInconsistentState reports whether err is an index-state inconsistency.
func IsInconsistentState(err error) bool {
	var re *RagError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInconsistentState
	}
	return false
}

package errors

import (
	stderrors "errors"
	"fmt"
)

// LensError is the structured error type for chatlens.
// It provides rich context for error handling, logging, and user presentation.
type LensError struct {
	// Code is the unique error code (e.g., "ERR_201_STORAGE_READ").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Provider, etc.).
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
func (e *LensError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LensError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with LensError.
func (e *LensError) Is(target error) bool {
	if t, ok := target.(*LensError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *LensError) WithDetail(key, value string) *LensError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *LensError) WithSuggestion(suggestion string) *LensError {
	e.Suggestion = suggestion
	return e
}

// New creates a new LensError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *LensError {
	return &LensError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a LensError from an existing error.
// The error's message becomes the LensError message.
func Wrap(code string, err error) *LensError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *LensError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a fatal cache or file storage error.
func StorageError(message string, cause error) *LensError {
	return New(ErrCodeStorageWrite, message, cause)
}

// ProviderError creates a retryable embedding provider error.
func ProviderError(message string, cause error) *LensError {
	return New(ErrCodeProviderUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *LensError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *LensError {
	return New(ErrCodeInternal, message, cause)
}

// DimensionMismatch reports a vector whose length disagrees with the
// dimension fixed by the cache or index it is meant for.
func DimensionMismatch(expected, got int) *LensError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}

// IndexNotReady reports a query made before the first successful build.
func IndexNotReady() *LensError {
	return New(ErrCodeIndexNotReady, "search index is not ready", nil).
		WithSuggestion("Wait for the initial index build to finish, or run 'chatlens index'")
}

// as finds the first LensError in err's chain.
func as(err error) (*LensError, bool) {
	var le *LensError
	if stderrors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain holds a LensError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := as(err); ok {
		return le.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := as(err); ok {
		return le.Severity == SeverityFatal
	}
	return false
}

// IsProviderError reports whether err came from the embedding provider.
func IsProviderError(err error) bool {
	return GetCategory(err) == CategoryProvider
}

// IsStorageError reports whether err is a cache or file storage failure.
func IsStorageError(err error) bool {
	return GetCategory(err) == CategoryStorage
}

// IsDimensionMismatch reports whether err is a query dimension mismatch.
func IsDimensionMismatch(err error) bool {
	return GetCode(err) == ErrCodeDimensionMismatch
}

// IsIndexNotReady reports whether err was raised by a query against an unbuilt index.
func IsIndexNotReady(err error) bool {
	return GetCode(err) == ErrCodeIndexNotReady
}

// GetCode extracts the error code from a LensError.
// Returns empty string if there is no LensError in the chain.
func GetCode(err error) string {
	if le, ok := as(err); ok {
		return le.Code
	}
	return ""
}

// GetCategory extracts the category from a LensError.
// Returns empty string if there is no LensError in the chain.
func GetCategory(err error) Category {
	if le, ok := as(err); ok {
		return le.Category
	}
	return ""
}

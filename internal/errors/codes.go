// Package errors provides structured error handling for chatlens.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (embedding cache, conversation files)
//   - 3XX: Embedding provider errors
//   - 4XX: Validation and query errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates cache and file storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryProvider indicates embedding provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	// Storage errors (200-299)
	ErrCodeStorageRead     = "ERR_201_STORAGE_READ"
	ErrCodeStorageWrite    = "ERR_202_STORAGE_WRITE"
	ErrCodeStorageCorrupt  = "ERR_203_STORAGE_CORRUPT"
	ErrCodeStorageLocked   = "ERR_204_STORAGE_LOCKED"
	ErrCodeFileNotFound    = "ERR_205_FILE_NOT_FOUND"
	ErrCodeArchiveInvalid  = "ERR_206_ARCHIVE_INVALID"
	ErrCodeArchiveTooLarge = "ERR_207_ARCHIVE_TOO_LARGE"

	// Provider errors (300-399)
	ErrCodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"
	ErrCodeProviderRateLimited = "ERR_303_PROVIDER_RATE_LIMITED"
	ErrCodeProviderBadResponse = "ERR_304_PROVIDER_BAD_RESPONSE"
	ErrCodeProviderAuth        = "ERR_305_PROVIDER_AUTH"

	// Validation errors (400-499)
	ErrCodeInvalidInput         = "ERR_400_INVALID_INPUT"
	ErrCodeDimensionMismatch    = "ERR_401_DIMENSION_MISMATCH"
	ErrCodeIndexNotReady        = "ERR_402_INDEX_NOT_READY"
	ErrCodeInvalidQuery         = "ERR_403_INVALID_QUERY"
	ErrCodeConversationNotFound = "ERR_404_CONVERSATION_NOT_FOUND"
	ErrCodeQueryTooLong         = "ERR_405_QUERY_TOO_LONG"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeBuildSuperseded = "ERR_502_BUILD_SUPERSEDED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Storage failures abort the build that hit them
	switch code {
	case ErrCodeStorageRead, ErrCodeStorageWrite, ErrCodeStorageCorrupt:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// A provider that returned the wrong number of vectors is not retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderTimeout, ErrCodeProviderUnavailable, ErrCodeProviderRateLimited:
		return true
	default:
		return false
	}
}

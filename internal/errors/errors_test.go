package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLensError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("disk full")

	lensErr := New(ErrCodeStorageWrite, "failed to persist embedding", originalErr)

	require.NotNil(t, lensErr)
	assert.Equal(t, originalErr, errors.Unwrap(lensErr))
	assert.True(t, errors.Is(lensErr, originalErr))
}

func TestLensError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "storage error",
			code:     ErrCodeStorageRead,
			message:  "cache unreadable",
			expected: "[ERR_201_STORAGE_READ] cache unreadable",
		},
		{
			name:     "provider error",
			code:     ErrCodeProviderTimeout,
			message:  "request timed out",
			expected: "[ERR_301_PROVIDER_TIMEOUT] request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestLensError_Is_MatchesByCode(t *testing.T) {
	err := New(ErrCodeIndexNotReady, "not yet", nil)
	assert.True(t, errors.Is(err, IndexNotReady()))
	assert.False(t, errors.Is(err, DimensionMismatch(4, 3)))
}

func TestLensError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeStorageWrite, "write failed", nil).
		WithDetail("id", "msg-1").
		WithSuggestion("Check free disk space")

	assert.Equal(t, "msg-1", err.Details["id"])
	assert.Equal(t, "Check free disk space", err.Suggestion)
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeStorageCorrupt, CategoryStorage},
		{ErrCodeProviderRateLimited, CategoryProvider},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{"bogus", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryFromCode(tt.code))
		})
	}
}

func TestSeverityAndRetryable(t *testing.T) {
	tests := []struct {
		code      string
		severity  Severity
		retryable bool
	}{
		{ErrCodeStorageWrite, SeverityFatal, false},
		{ErrCodeStorageRead, SeverityFatal, false},
		{ErrCodeProviderTimeout, SeverityWarning, true},
		{ErrCodeProviderUnavailable, SeverityWarning, true},
		{ErrCodeProviderRateLimited, SeverityWarning, true},
		{ErrCodeProviderBadResponse, SeverityError, false},
		{ErrCodeDimensionMismatch, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "x", nil)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	storage := fmt.Errorf("build: %w", StorageError("put failed", nil))
	provider := fmt.Errorf("batch 3: %w", ProviderError("connection refused", nil))
	dim := fmt.Errorf("query: %w", DimensionMismatch(768, 3))
	notReady := fmt.Errorf("query: %w", IndexNotReady())

	assert.True(t, IsStorageError(storage))
	assert.True(t, IsFatal(storage))
	assert.False(t, IsRetryable(storage))

	assert.True(t, IsProviderError(provider))
	assert.True(t, IsRetryable(provider))
	assert.False(t, IsFatal(provider))

	assert.True(t, IsDimensionMismatch(dim))
	assert.False(t, IsIndexNotReady(dim))
	assert.True(t, IsIndexNotReady(notReady))

	plain := errors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.Empty(t, GetCode(plain))
}

func TestDimensionMismatch_CarriesDetails(t *testing.T) {
	err := DimensionMismatch(768, 384)
	assert.Equal(t, "768", err.Details["expected"])
	assert.Equal(t, "384", err.Details["got"])
	assert.Contains(t, err.Error(), "expected 768, got 384")
	assert.NotContains(t, err.Error(), "query")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))

	wrapped := Wrap(ErrCodeInternal, errors.New("something went wrong"))
	require.NotNil(t, wrapped)
	assert.Equal(t, "something went wrong", wrapped.Message)
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
		retry    bool
	}{
		{"config invalid", ErrCodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{"unknown strategy", ErrCodeUnknownStrategy, CategoryConfig, SeverityFatal, false},
		{"file not found", ErrCodeFileNotFound, CategoryIO, SeverityError, false},
		{"provider unavailable", ErrCodeProviderUnavailable, CategoryProvider, SeverityWarning, true},
		{"provider timeout", ErrCodeProviderTimeout, CategoryProvider, SeverityWarning, true},
		{"dimension mismatch", ErrCodeDimensionMismatch, CategoryValidation, SeverityError, false},
		{"inconsistent state", ErrCodeInconsistentState, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retry, err.Retryable)
		})
	}
}

func TestRagError_Is(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "expected 256, got 128", nil)
	target := New(ErrCodeDimensionMismatch, "", nil)

	assert.True(t, stderrors.Is(err, target))
	assert.False(t, stderrors.Is(err, New(ErrCodeInvalidInput, "", nil)))
}

func TestRagError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeProviderUnavailable, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.True(t, IsProviderUnavailable(err))
}

func TestRagError_Wrapped(t *testing.T) {
	// Category checks must see through fmt.Errorf wrapping.
	inner := ProviderError("embedding service down", nil)
	outer := fmt.Errorf("embed batch 3: %w", inner)

	assert.True(t, IsProviderUnavailable(outer))
	assert.True(t, IsRetryable(outer))
	assert.False(t, IsValidation(outer))
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := ConfigError("unknown backend", nil).
		WithDetail("backend", "pinecone").
		WithSuggestion("use one of: flat, hnsw, chromem")

	assert.Equal(t, "pinecone", err.Details["backend"])
	assert.NotEmpty(t, err.Suggestion)
	assert.True(t, IsConfiguration(err))
}

func TestIsInconsistentState(t *testing.T) {
	err := InconsistentStateError("ledger references missing chunk", nil)
	assert.True(t, IsInconsistentState(err))
	assert.False(t, IsInconsistentState(ValidationError("bad input", nil)))
}

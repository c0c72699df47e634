package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassByCode(t *testing.T) {
	cases := []struct {
		code string
		want ErrorClass
	}{
		{ErrCodeValidation, ClassValidation},
		{ErrCodeCycleDetected, ClassValidation},
		{ErrCodeNodeCeiling, ClassValidation},
		{ErrCodeAuth, ClassFatal},
		{ErrCodeConfig, ClassFatal},
		{ErrCodeTimeout, ClassTransient},
		{ErrCodeRateLimit, ClassTransient},
		{ErrCodeUpstream, ClassTransient},
		{ErrCodeStore, ClassTransient},
		{"SOMETHING_UNKNOWN", ClassTransient},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := NewError(tc.code, "boom")
			assert.Equal(t, tc.want, err.Class())
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeUpstream, "model unavailable")
	assert.Equal(t, "[UPSTREAM_ERROR] model unavailable", err.Error())

	err = err.WithStage("planning")
	assert.Equal(t, "[UPSTREAM_ERROR] stage planning: model unavailable", err.Error())
}

func TestErrorfAndBuilders(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewErrorf(ErrCodeUpstream, "fetch %s failed", "https://example.com").
		WithStage("reference_analysis").
		WithCause(cause).
		WithDetails(map[string]any{"status": 502})

	assert.Contains(t, err.Message, "https://example.com")
	assert.Equal(t, "reference_analysis", err.Stage)
	assert.Equal(t, 502, err.Details["status"])
	assert.True(t, errors.Is(err, cause))
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	inner := NewError(ErrCodeValidation, "bad hex")
	wrapped := NewError(ErrCodeStageFailed, "merge failed").WithCause(inner)

	var ferr *ForgeError
	require.True(t, errors.As(wrapped.Cause, &ferr))
	assert.Equal(t, ClassValidation, ferr.Class())
}

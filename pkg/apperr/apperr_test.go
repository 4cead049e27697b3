package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := ToolTransient("warehouse query failed", cause)

	require.Error(t, err)
	assert.Equal(t, KindToolTransient, err.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "tool_transient")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestValidationHasNoCause(t *testing.T) {
	err := Validation("mode must be one of sql_only, multi_tool, handoff, magentic")
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, KindValidation, err.Kind)
}

func TestAsAndKindOf(t *testing.T) {
	wrapped := fmt.Errorf("wrapping: %w", UpstreamRateLimited("rate limited", nil))

	extracted, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindUpstreamRateLimited, extracted.Kind)
	assert.Equal(t, KindUpstreamRateLimited, KindOf(wrapped))

	plain := errors.New("not ours")
	assert.Equal(t, KindInternal, KindOf(plain))
	_, ok = As(plain)
	assert.False(t, ok)
}

func TestInternalCarriesCorrelationID(t *testing.T) {
	err := Internal("unexpected panic recovered", errors.New("nil pointer"), "turn-abc123")
	assert.Equal(t, "turn-abc123", err.CorrelationID)
	assert.Equal(t, KindInternal, err.Kind)
}

func TestKindPersists(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindValidation, false},
		{KindUpstreamUnavailable, false},
		{KindToolTransient, true},
		{KindToolPermanent, true},
		{KindUpstreamRateLimited, true},
		{KindCancelled, true},
		{KindInternal, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.kind.Persists(), "kind=%s", tc.kind)
	}
}

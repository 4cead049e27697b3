package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateConfigCloneIsDeep(t *testing.T) {
	temp := 0.4
	cfg := &GenerateConfig{Temperature: &temp, ReasoningEffort: "low"}
	clone := cfg.Clone()
	require.NotNil(t, clone)
	require.NotSame(t, cfg.Temperature, clone.Temperature)
	*clone.Temperature = 0.9
	assert.Equal(t, 0.4, *cfg.Temperature)
	assert.Equal(t, "low", string(clone.ReasoningEffort))
}

func TestGenerateConfigCloneNil(t *testing.T) {
	var cfg *GenerateConfig
	assert.Nil(t, cfg.Clone())
}

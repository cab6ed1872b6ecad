package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phrasepool.dev/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	return cfg
}

func TestValidatePrompt_RejectsEmptyAndOverlong(t *testing.T) {
	v := NewValidator(testConfig(t), nil)
	ctx := context.Background()

	_, err := v.ValidatePrompt(ctx, "   ")
	assert.Error(t, err)

	_, err = v.ValidatePrompt(ctx, "SUNNY HOME OCEAN PARK SHIP BEACH")
	assert.Error(t, err) // six words, over the five-word max
}

func TestValidatePrompt_AcceptsWellFormedPhrase(t *testing.T) {
	v := NewValidator(testConfig(t), nil)
	normalized, err := v.ValidatePrompt(context.Background(), "sunny home")
	require.NoError(t, err)
	assert.Equal(t, "SUNNY HOME", normalized)
}

func TestValidatePrompt_RejectsNonDictionaryWord(t *testing.T) {
	v := NewValidator(testConfig(t), nil)
	_, err := v.ValidatePrompt(context.Background(), "sunny zzzxqy")
	assert.Error(t, err)
}

func TestValidateCopy_RejectsExactDuplicateOfOriginal(t *testing.T) {
	v := NewValidator(testConfig(t), nil)
	_, err := v.ValidateCopy(context.Background(), "sunny home", "SUNNY HOME", "", "")
	assert.Error(t, err)
}

func TestValidateCopy_RejectsSharedSignificantWord(t *testing.T) {
	v := NewValidator(testConfig(t), nil)
	// "OCEAN" (5 letters, >= SignificantWordMinLength) appears in both.
	_, err := v.ValidateCopy(context.Background(), "ocean park", "OCEAN SHIP", "", "")
	assert.Error(t, err)
}

func TestValidateCopy_AcceptsDistinctPhrase(t *testing.T) {
	v := NewValidator(testConfig(t), nil)
	normalized, err := v.ValidateCopy(context.Background(), "home park", "OCEAN SHIP", "", "")
	require.NoError(t, err)
	assert.Equal(t, "HOME PARK", normalized)
}

func TestLcsRatio(t *testing.T) {
	assert.Equal(t, 1.0, lcsRatio("ABC", "ABC"))
	assert.Equal(t, 0.0, lcsRatio("", "ABC"))
	assert.InDelta(t, 0.666, lcsRatio("ABC", "ABD"), 0.01)
}

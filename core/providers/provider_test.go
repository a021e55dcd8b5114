package providers_test

import (
	"testing"

	"github.com/adalundhe/relay/core/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnthropicProvider_RequiresAPIKey(t *testing.T) {
	_, err := providers.NewAnthropicProvider(providers.AnthropicConfig{})
	assert.ErrorIs(t, err, providers.ErrMissingAPIKey)
}

func TestNewAnthropicProvider_Defaults(t *testing.T) {
	p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := providers.NewOpenAIProvider(providers.OpenAIConfig{})
	assert.ErrorIs(t, err, providers.ErrMissingAPIKey)
}

func TestNewOpenAIProvider_Defaults(t *testing.T) {
	p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

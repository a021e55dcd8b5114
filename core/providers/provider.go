package providers

import "errors"

// Package providers holds the concrete text-generation clients behind the
// classifier's TextGenerator contract. Each provider exposes the same
// Generate(ctx, prompt, modelHint) surface; the model hint overrides the
// configured default per call.

var (
	ErrMissingAPIKey = errors.New("api key is required")
	ErrEmptyResponse = errors.New("provider returned no text content")
)

// ProviderType identifies a provider implementation.
type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
)

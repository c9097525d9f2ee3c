package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/anthropic"
)

// DefaultAnthropicModel is used when no model is configured for the anthropic provider.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic builds an Anthropic chat model.
func Anthropic(apiKey, model string) (*anthropic.LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to init anthropic: %w", err)
	}
	return llm, nil
}

package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultOpenAIModel is used when no model is configured for the openai provider.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI builds an OpenAI chat model.
func OpenAI(apiKey, model string) (*openai.LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to init openai: %w", err)
	}
	return llm, nil
}

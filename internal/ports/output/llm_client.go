package output

import (
	"context"

	"wps-bot-bridge/internal/domain"
)

// LLMClient interface - Output port
// Defines what the application needs from an OpenAI-compatible chat completion
// endpoint for sending prompts and receiving AI-generated responses.
type LLMClient interface {
	// ChatCompletion sends a non-streaming chat completion request.
	// Failures are classified as domain.ErrLLMTimeout, ErrLLMRateLimited,
	// ErrInvalidRequest or ErrLLMUnavailable.
	ChatCompletion(ctx context.Context, request domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error)

	// ListModels retrieves the models exposed by the gateway.
	// It is used for model selection when no model is configured.
	ListModels(ctx context.Context) ([]domain.ModelInfo, error)
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"wps-bot-bridge/configs"
	"wps-bot-bridge/internal/domain"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 120 * time.Second

// OpenAIClientAdapter struct - Output adapter for any OpenAI-compatible chat completion gateway
type OpenAIClientAdapter struct {
	client      openai.Client
	baseURL     string
	configModel string
	timeout     time.Duration

	// Model caching
	cachedModel string
	modelMu     sync.RWMutex
}

// NewOpenAIClientAdapter func - Creates new LLM client adapter
func NewOpenAIClientAdapter(config configs.LLM) (*OpenAIClientAdapter, error) {
	if config.APIBase == "" {
		return nil, fmt.Errorf("%w: llm api base is empty", domain.ErrInvalidRequest)
	}

	// the SDK resolves relative paths against a base ending in a slash
	baseURL := strings.TrimSuffix(config.APIBase, "/") + "/"

	timeout := config.RequestTimeoutDuration()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(config.MaxRetries),
	}
	// local gateways usually accept any key, the SDK still wants one
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}
	opts = append(opts, option.WithAPIKey(apiKey))

	adapter := &OpenAIClientAdapter{
		client:      openai.NewClient(opts...),
		baseURL:     baseURL,
		configModel: config.Model,
		timeout:     timeout,
	}

	logrus.Infof("LLM client adapter initialized with base URL: %s, timeout: %v", baseURL, timeout)

	return adapter, nil
}

// ListModels queries the models endpoint of the gateway
func (a *OpenAIClientAdapter) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	page, err := a.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", classifyError(err))
	}

	models := make([]domain.ModelInfo, len(page.Data))
	for i, m := range page.Data {
		models[i] = domain.ModelInfo{
			ID:      m.ID,
			Object:  string(m.Object),
			OwnedBy: m.OwnedBy,
		}
	}

	logrus.Debugf("Listed %d models from LLM gateway", len(models))

	return models, nil
}

// getModel returns the model to use for requests, with caching
func (a *OpenAIClientAdapter) getModel(ctx context.Context) (string, error) {
	a.modelMu.RLock()
	if a.cachedModel != "" {
		model := a.cachedModel
		a.modelMu.RUnlock()
		return model, nil
	}
	a.modelMu.RUnlock()

	a.modelMu.Lock()
	defer a.modelMu.Unlock()

	// Double-check after acquiring write lock
	if a.cachedModel != "" {
		return a.cachedModel, nil
	}

	if a.configModel != "" {
		a.cachedModel = a.configModel
		logrus.Infof("Using configured model: %s", a.cachedModel)
		return a.cachedModel, nil
	}

	models, err := a.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get models for selection: %w", err)
	}
	if len(models) == 0 {
		return "", fmt.Errorf("%w: no models available", domain.ErrLLMUnavailable)
	}

	a.cachedModel = models[0].ID
	logrus.Infof("Selected first available model: %s", a.cachedModel)

	return a.cachedModel, nil
}

// ChatCompletion sends a non-streaming chat completion request
func (a *OpenAIClientAdapter) ChatCompletion(ctx context.Context, request domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	if len(request.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", domain.ErrInvalidRequest)
	}

	model, err := a.getModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	if request.Model != nil && *request.Model != "" {
		model = *request.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toMessageParams(request.Messages),
	}
	if request.Temperature != nil {
		params.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		params.TopP = openai.Float(*request.TopP)
	}
	if request.MaxTokens != nil && *request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*request.PresencePenalty)
	}
	if request.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*request.FrequencyPenalty)
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", classifyError(err))
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", domain.ErrLLMUnavailable)
	}

	response := &domain.ChatCompletionResponse{
		Content:          completion.Choices[0].Message.Content,
		Model:            completion.Model,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}

	logrus.Infof("Chat completion successful, model: %s, tokens: %d", response.Model, response.TotalTokens)

	return response, nil
}

func toMessageParams(messages []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case domain.RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}
	return params
}

// classifyError maps transport and API failures onto the domain LLM errors
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d", domain.ErrLLMRateLimited, apiErr.StatusCode)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return fmt.Errorf("%w: status %d: %v", domain.ErrInvalidRequest, apiErr.StatusCode, err)
		default:
			return fmt.Errorf("%w: status %d", domain.ErrLLMUnavailable, apiErr.StatusCode)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrLLMTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrLLMTimeout, err)
	}

	return fmt.Errorf("%w: %v", domain.ErrLLMUnavailable, err)
}

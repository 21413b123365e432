package domain

// ChatMessage is one message of an LLM chat completion request
type ChatMessage struct {
	Role    Role
	Content string
}

// ChatCompletionRequest is what the application asks the LLM client for
type ChatCompletionRequest struct {
	Messages         []ChatMessage
	Model            *string
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// ChatCompletionResponse is the assistant answer with usage statistics
type ChatCompletionResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ModelInfo describes one model exposed by the LLM gateway
type ModelInfo struct {
	ID      string
	Object  string
	OwnedBy string
}

// TurnsToChatMessages converts session history into chat messages
func TurnsToChatMessages(turns []Turn) []ChatMessage {
	messages := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, ChatMessage{Role: t.Role, Content: t.Text})
	}
	return messages
}

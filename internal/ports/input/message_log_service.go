package input

import "wps-bot-bridge/internal/domain"

// MessageLogService interface - Input port (use case)
// Read access to the processed-exchange log
type MessageLogService interface {
	ListMessages(conversationID string, limit int) ([]domain.MessageLog, error)
}

package output

import "wps-bot-bridge/internal/domain"

// MessageLogRepository interface - Output port
// Defines what the application needs from data persistence
type MessageLogRepository interface {
	Record(entry *domain.MessageLog) error
	ListByConversation(conversationID string, limit int) ([]domain.MessageLog, error)
}

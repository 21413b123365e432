package application

import (
	"errors"
	"strings"

	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/internal/ports/output"

	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ErrConversationRequired is returned when no conversation id is given
var ErrConversationRequired = errors.New("conversation id is required")

// MessageLogService struct - Application service over the message log
type MessageLogService struct {
	repo output.MessageLogRepository
}

// NewMessageLogService func - Creates new message log service
func NewMessageLogService(repo output.MessageLogRepository) *MessageLogService {
	return &MessageLogService{
		repo: repo,
	}
}

// ListMessages func - Use case: latest exchanges of one conversation, newest first
func (s *MessageLogService) ListMessages(conversationID string, limit int) ([]domain.MessageLog, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, ErrConversationRequired
	}

	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	entries, err := s.repo.ListByConversation(conversationID, limit)
	if err != nil {
		logrus.Errorln(err)
		return nil, err
	}
	if entries == nil {
		entries = make([]domain.MessageLog, 0)
	}
	return entries, nil
}

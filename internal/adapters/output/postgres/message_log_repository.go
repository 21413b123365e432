package postgres

import (
	"errors"

	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/internal/ports/output"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Compile-time check to ensure MessageLogRepository implements the output port
var _ output.MessageLogRepository = (*MessageLogRepository)(nil)

const defaultListLimit = 50

// MessageLogRepository struct - Secondary/Driven adapter for PostgreSQL
type MessageLogRepository struct {
	dbGorm *gorm.DB
}

// NewMessageLogRepository func - Creates new PostgreSQL repository.
// The schema is migrated separately with domain.MigrateDatabase.
func NewMessageLogRepository(dbGorm *gorm.DB) *MessageLogRepository {
	return &MessageLogRepository{
		dbGorm: dbGorm,
	}
}

// Record func - Inserts one processed exchange
func (p *MessageLogRepository) Record(entry *domain.MessageLog) error {
	if entry == nil {
		return errors.New("message log entry is nil")
	}
	if err := p.dbGorm.Create(entry).Error; err != nil {
		logrus.Errorln(err)
		return err
	}
	return nil
}

// ListByConversation func - Returns the latest entries of a conversation, newest first
func (p *MessageLogRepository) ListByConversation(conversationID string, limit int) ([]domain.MessageLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var entries []domain.MessageLog
	err := p.dbGorm.
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		logrus.Errorln(err)
		return nil, err
	}
	return entries, nil
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DeliveryStatus of a logged exchange
type DeliveryStatus string

const (
	// DeliveryStatusSent const
	DeliveryStatusSent DeliveryStatus = "SENT"
	// DeliveryStatusFailed const
	DeliveryStatusFailed DeliveryStatus = "FAILED"
	// DeliveryStatusSkipped const
	DeliveryStatusSkipped DeliveryStatus = "SKIPPED"
)

// MessageLog struct - one processed message and the bridge's answer
type MessageLog struct {
	ID             *uuid.UUID     `gorm:"type:uuid;primary_key;"`
	MessageID      string         `gorm:"type:varchar(128);not null;index"`
	ConversationID string         `gorm:"type:varchar(128);not null;index"`
	SenderID       string         `gorm:"type:varchar(128);not null;"`
	Route          Route          `gorm:"type:varchar(16);not null;"`
	UserText       string         `gorm:"type:text"`
	ReplyText      string         `gorm:"type:text"`
	Fallback       bool           `gorm:"not null;default:false"`
	Delivery       DeliveryStatus `gorm:"type:varchar(8);not null;"`
	Error          string         `gorm:"type:text"`
	LatencyMillis  int64
	CreatedAt      *time.Time `gorm:"type:timestamp"`
}

// TableName func
func (m *MessageLog) TableName() string {
	return "message_logs"
}

// BeforeCreate hook - generates UUID before creating
func (m *MessageLog) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID != nil {
		return nil
	}
	id, err := uuid.NewRandom() // v4
	if err != nil {
		return err
	}
	m.ID = &id
	return nil
}

// MigrateDatabase func - Auto-migrate database schema
func MigrateDatabase(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	logrus.Info("Migrate database ...")
	return db.AutoMigrate(&MessageLog{})
}

// NewMessageLog builds a log row from a processed message
func NewMessageLog(msg NormalizedMessage, result ProcessResult) *MessageLog {
	entry := &MessageLog{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Route:          result.Route,
		UserText:       msg.Text,
		ReplyText:      result.ReplyText,
		Fallback:       result.LLMError != nil,
		LatencyMillis:  result.Duration.Milliseconds(),
	}

	switch {
	case result.ReplyText == "":
		entry.Delivery = DeliveryStatusSkipped
	case result.DeliveryError != nil:
		entry.Delivery = DeliveryStatusFailed
		entry.Error = result.DeliveryError.Error()
	default:
		entry.Delivery = DeliveryStatusSent
	}
	if result.LLMError != nil && entry.Error == "" {
		entry.Error = result.LLMError.Error()
	}
	return entry
}

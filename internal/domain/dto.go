package domain

import "time"

// DTOs (Data Transfer Objects) - Domain layer request/response structures

// ReceiverType is the addressee kind of an outgoing message
type ReceiverType string

const (
	// ReceiverTypeUser - direct message to a user
	ReceiverTypeUser ReceiverType = "user"
	// ReceiverTypeChat - message to a group chat
	ReceiverTypeChat ReceiverType = "chat"
)

// ReplyKind is the rendering of an outgoing message
type ReplyKind string

const (
	ReplyKindText     ReplyKind = "text"
	ReplyKindMarkdown ReplyKind = "markdown"
)

type (
	// Receiver identifies who gets an outgoing message
	Receiver struct {
		ID   string
		Type ReceiverType
	}

	// OutgoingMessage - Domain platform send request DTO
	OutgoingMessage struct {
		Receiver Receiver
		Kind     ReplyKind
		Text     string
		// InReplyTo is the id of the message being answered, for logging
		InReplyTo string
	}

	// SendResult - Domain platform API response DTO
	SendResult struct {
		MessageID string
		Attempts  int
	}

	// ProcessResult summarizes one run of the orchestrator over a message
	ProcessResult struct {
		State     State
		Route     Route
		ReplyText string
		// LLMError is set when the reply is a fallback
		LLMError error
		// DeliveryError is set when the reply could not be delivered
		DeliveryError error
		// SessionError is set when the store failed and the turn ran stateless
		SessionError error
		Duration     time.Duration
	}
)

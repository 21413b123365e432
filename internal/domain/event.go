package domain

import "time"

// EventType is the kind of a webhook delivery
type EventType string

const (
	// EventTypeURLVerification - one-time callback URL handshake
	EventTypeURLVerification EventType = "url_verification"
	// EventTypeMessageCreate - a message was sent to the bot
	EventTypeMessageCreate EventType = "kso.app_chat.message.create"
	// EventTypeOther - anything this bridge does not handle
	EventTypeOther EventType = "other"
)

// InboundHeaders carries the signing headers of a webhook delivery
type InboundHeaders struct {
	AppID     string
	Signature string
	Timestamp string
	Nonce     string
}

// InboundEvent is one webhook delivery as received over HTTP.
// It is discarded once normalized.
type InboundEvent struct {
	Body      []byte
	Headers   InboundHeaders
	ArrivedAt time.Time
	RequestID string
}

// IngestionKind tags the outcome of ingesting an InboundEvent
type IngestionKind int

const (
	// IngestionIgnored - acknowledge and do nothing
	IngestionIgnored IngestionKind = iota
	// IngestionHandshake - answer with the challenge token
	IngestionHandshake
	// IngestionMessage - a message to process
	IngestionMessage
)

func (k IngestionKind) String() string {
	switch k {
	case IngestionHandshake:
		return "handshake"
	case IngestionMessage:
		return "message"
	default:
		return "ignored"
	}
}

// Ingestion is the normalized result of one webhook delivery
type Ingestion struct {
	Kind      IngestionKind
	EventType EventType
	Challenge string
	Message   *NormalizedMessage
	// Reason explains an ignored delivery, for logging only
	Reason string
}

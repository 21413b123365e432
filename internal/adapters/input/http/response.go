package http

import (
	"net/http"
	"time"

	"wps-bot-bridge/internal/domain"

	"github.com/google/uuid"
)

var (
	// Success response
	Success = Status{Code: http.StatusOK, Message: []string{"Success"}}
	// BadRequest response
	BadRequest = Status{Code: http.StatusBadRequest, Message: []string{"Sorry, Not responding because of incorrect syntax"}}
	// NotFound response
	NotFound = Status{Code: http.StatusNotFound, Message: []string{"Sorry, Message log is not enabled"}}
	// InternalServerError response
	InternalServerError = Status{Code: http.StatusInternalServerError, Message: []string{"Internal Server Error"}}
)

// ResponseBody struct - Generic HTTP response wrapper
type ResponseBody struct {
	Status Status      `json:"status,omitempty"`
	Data   interface{} `json:"data,omitempty"`

	PerPage   *int   `json:"per_page,omitempty"`
	TotalItem *int64 `json:"total_item,omitempty"`
}

// Status struct
type Status struct {
	Code    int      `json:"code,omitempty"`
	Message []string `json:"message,omitempty"`
}

// Platform-facing bodies of the event callback

// EventAck struct - acknowledgement of a webhook delivery
type EventAck struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

var (
	// AckSuccess is returned for every accepted delivery
	AckSuccess = EventAck{Code: 0, Msg: "success"}
	// AckUnauthorized is returned when the signature does not verify
	AckUnauthorized = EventAck{Code: http.StatusUnauthorized, Msg: "Unauthorized"}
	// AckInternalError is returned when ingestion fails for another reason
	AckInternalError = EventAck{Code: http.StatusInternalServerError, Msg: "Internal Server Error"}
)

// ChallengeResponse struct - answer to the URL verification handshake
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

// HealthResponse struct
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// IndexResponse struct
type IndexResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// MessageLogResponse struct - HTTP response DTO for one logged exchange
type MessageLogResponse struct {
	ID             *uuid.UUID `json:"id,omitempty"`
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Route          string     `json:"route"`
	UserText       string     `json:"user_text,omitempty"`
	ReplyText      string     `json:"reply_text,omitempty"`
	Fallback       bool       `json:"fallback"`
	Delivery       string     `json:"delivery"`
	Error          string     `json:"error,omitempty"`
	LatencyMillis  int64      `json:"latency_ms"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

func toMessageLogResponse(entry domain.MessageLog) MessageLogResponse {
	return MessageLogResponse{
		ID:             entry.ID,
		MessageID:      entry.MessageID,
		ConversationID: entry.ConversationID,
		SenderID:       entry.SenderID,
		Route:          string(entry.Route),
		UserText:       entry.UserText,
		ReplyText:      entry.ReplyText,
		Fallback:       entry.Fallback,
		Delivery:       string(entry.Delivery),
		Error:          entry.Error,
		LatencyMillis:  entry.LatencyMillis,
		CreatedAt:      entry.CreatedAt,
	}
}

package output

import (
	"context"

	"wps-bot-bridge/internal/domain"
)

// PlatformClient interface - Output port
// Defines what the application needs from the chat platform's send API
type PlatformClient interface {
	// SendMessage delivers one reply, retrying transient failures.
	// A returned error wraps domain.ErrDelivery.
	SendMessage(ctx context.Context, message domain.OutgoingMessage) (*domain.SendResult, error)
}

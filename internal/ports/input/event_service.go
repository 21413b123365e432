package input

import (
	"context"

	"wps-bot-bridge/internal/domain"
)

// EventService interface - Input port (use case)
// Defines what the application can do with platform webhook deliveries
type EventService interface {
	// Ingest verifies and normalizes one delivery. An authentication failure
	// returns an error wrapping domain.ErrAuthentication; a malformed body is
	// reported as an ignored ingestion.
	Ingest(ctx context.Context, event domain.InboundEvent) (domain.Ingestion, error)

	// Process runs one normalized message to completion.
	Process(ctx context.Context, message domain.NormalizedMessage) domain.ProcessResult

	// HandleWebhook ingests a delivery and processes its message inline.
	HandleWebhook(ctx context.Context, event domain.InboundEvent) (domain.Ingestion, error)
}

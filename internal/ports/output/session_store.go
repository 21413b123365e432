package output

import (
	"context"
	"time"

	"wps-bot-bridge/internal/domain"
)

// SessionStore interface - Output port
// Defines what the application needs for managing conversation context.
// Sessions store bounded dialogue history per conversation id so the LLM
// sees multi-turn context. Implementations must be safe for concurrent use
// and linearizable per conversation id.
type SessionStore interface {
	// GetContext returns a copy of the turns of a conversation, oldest first.
	// Missing or expired sessions yield an empty slice; an expired session is
	// deleted as a side effect.
	GetContext(ctx context.Context, conversationID string) ([]domain.Turn, error)

	// AppendTurn appends a single turn, creating the session if needed.
	AppendTurn(ctx context.Context, conversationID string, role domain.Role, text string) error

	// AppendTurns appends every turn in order as one atomic update.
	AppendTurns(ctx context.Context, conversationID string, turns ...domain.Turn) error

	// Reset removes the session. Idempotent.
	Reset(ctx context.Context, conversationID string) error

	// Sweep removes every session idle longer than the TTL at now and
	// returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

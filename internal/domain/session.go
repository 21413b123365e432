package domain

import "time"

// Role of a turn in the conversation
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one (role, text) unit of dialogue history
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// SessionPolicy bounds every session of a store
type SessionPolicy struct {
	MaxTurns int           // maximum number of turns kept, oldest dropped first
	MaxBytes int           // maximum total text bytes, 0 disables the budget
	IdleTTL  time.Duration // a session untouched for longer is expired
}

// ConversationSession is the context kept for one conversation id.
// It is owned by a SessionStore; other components only see copies of its turns.
type ConversationSession struct {
	ConversationID string    `json:"conversation_id"`
	Turns          []Turn    `json:"turns"`
	LastActivity   time.Time `json:"last_activity"`
}

// NewConversationSession creates an empty session
func NewConversationSession(conversationID string, now time.Time) *ConversationSession {
	return &ConversationSession{
		ConversationID: conversationID,
		Turns:          make([]Turn, 0),
		LastActivity:   now,
	}
}

// IsExpired checks if the session has been idle longer than ttl
func (s *ConversationSession) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.LastActivity) > ttl
}

// Append adds turns in order, trims the history to the policy and updates
// the last activity time. An expired session is emptied first.
func (s *ConversationSession) Append(now time.Time, policy SessionPolicy, turns ...Turn) {
	if s.IsExpired(now, policy.IdleTTL) {
		s.Turns = s.Turns[:0]
	}
	s.Turns = append(s.Turns, turns...)
	s.trim(policy)
	s.LastActivity = now
}

// Clear drops every turn
func (s *ConversationSession) Clear(now time.Time) {
	s.Turns = make([]Turn, 0)
	s.LastActivity = now
}

// trim drops the oldest turns until both the turn cap and the byte budget hold.
// The newest turn is never dropped by the byte budget.
func (s *ConversationSession) trim(policy SessionPolicy) {
	if policy.MaxTurns > 0 && len(s.Turns) > policy.MaxTurns {
		s.Turns = s.Turns[len(s.Turns)-policy.MaxTurns:]
	}

	if policy.MaxBytes > 0 {
		total := 0
		for _, t := range s.Turns {
			total += len(t.Text)
		}
		drop := 0
		for total > policy.MaxBytes && drop < len(s.Turns)-1 {
			total -= len(s.Turns[drop].Text)
			drop++
		}
		s.Turns = s.Turns[drop:]
	}

	// re-slice onto a fresh array so dropped turns can be collected
	trimmed := make([]Turn, len(s.Turns))
	copy(trimmed, s.Turns)
	s.Turns = trimmed
}

// GetHistory returns a copy of the conversation history
func (s *ConversationSession) GetHistory() []Turn {
	if len(s.Turns) == 0 {
		return []Turn{}
	}

	// Return a copy to prevent external modification
	history := make([]Turn, len(s.Turns))
	copy(history, s.Turns)
	return history
}

package domain

import "time"

// ConversationKind distinguishes one-to-one chats from group chats
type ConversationKind string

const (
	// ConversationSingle - p2p chat between a user and the bot
	ConversationSingle ConversationKind = "single"
	// ConversationGroup - group chat
	ConversationGroup ConversationKind = "group"
)

// MessageKind represents the type of message
type MessageKind string

const (
	MessageKindText     MessageKind = "text"
	MessageKindRichText MessageKind = "rich_text"
	MessageKindMarkdown MessageKind = "markdown"
	MessageKindImage    MessageKind = "image"
	MessageKindFile     MessageKind = "file"
	MessageKindAudio    MessageKind = "audio"
	MessageKindVideo    MessageKind = "video"
	MessageKindUnknown  MessageKind = "unknown"
)

// Mention is one @-mention inside a message
type Mention struct {
	ID   string
	Name string
}

// NormalizedMessage is the canonical form of an inbound chat message
type NormalizedMessage struct {
	ID               string
	ConversationID   string
	ConversationKind ConversationKind
	SenderID         string
	SenderName       string
	Text             string
	Kind             MessageKind
	// Supported is false for kinds whose content cannot be forwarded to the LLM;
	// Text is empty in that case
	Supported bool
	Mentions  []Mention
	SentAt    time.Time
}

// IsGroup reports whether the message came from a group chat
func (m NormalizedMessage) IsGroup() bool {
	return m.ConversationKind == ConversationGroup
}

// SessionKey returns the key of the conversation context this message belongs to
func (m NormalizedMessage) SessionKey() string {
	return m.ConversationID
}

// Receiver returns where a reply to this message must be sent
func (m NormalizedMessage) Receiver() Receiver {
	if m.IsGroup() {
		return Receiver{ID: m.ConversationID, Type: ReceiverTypeChat}
	}
	return Receiver{ID: m.SenderID, Type: ReceiverTypeUser}
}

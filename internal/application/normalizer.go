package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/pkg/validator"
)

// imagePlaceholder stands in for an inline image of a rich text message
const imagePlaceholder = "[image]"

// Wire structures of the platform event payload

type eventEnvelope struct {
	Event     string          `json:"event"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type mentionPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Identity struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"identity"`
}

type messagePayload struct {
	Chat struct {
		ID   string `json:"id" validate:"required"`
		Type string `json:"type"`
	} `json:"chat"`
	Message struct {
		ID       string           `json:"id" validate:"required"`
		Type     string           `json:"type"`
		Content  json.RawMessage  `json:"content"`
		Mentions []mentionPayload `json:"mentions"`
	} `json:"message"`
	Sender struct {
		ID   string `json:"id" validate:"required"`
		Name string `json:"name"`
	} `json:"sender"`
	SendTime int64            `json:"send_time"`
	Mentions []mentionPayload `json:"mentions"`
}

type richTextElement struct {
	Type        string `json:"type"`
	TextContent struct {
		Content string `json:"content"`
	} `json:"text_content"`
	StyleTextContent struct {
		Text string `json:"text"`
	} `json:"style_text_content"`
	MentionContent struct {
		Text string `json:"text"`
	} `json:"mention_content"`
}

// EventNormalizer turns raw webhook bodies into domain values
type EventNormalizer struct {
	validator validator.Validator
}

// NewEventNormalizer func - Creates new event normalizer
func NewEventNormalizer(v validator.Validator) *EventNormalizer {
	if v == nil {
		v = validator.New()
	}
	return &EventNormalizer{validator: v}
}

// Normalize parses a verified body. Malformed JSON or a message event
// missing required fields returns an error wrapping domain.ErrParse.
func (n *EventNormalizer) Normalize(rawBody []byte) (domain.Ingestion, error) {
	var env eventEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return domain.Ingestion{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	if challenge, ok := n.IsHandshake(rawBody); ok {
		return domain.Ingestion{
			Kind:      domain.IngestionHandshake,
			EventType: domain.EventTypeURLVerification,
			Challenge: challenge,
		}, nil
	}

	eventType := env.Event
	if eventType == "" {
		eventType = env.EventType
	}

	if domain.EventType(eventType) != domain.EventTypeMessageCreate {
		return domain.Ingestion{
			Kind:      domain.IngestionIgnored,
			EventType: domain.EventTypeOther,
			Reason:    fmt.Sprintf("unhandled event type %q", eventType),
		}, nil
	}

	payload, err := n.decodeMessage(rawBody, env.Data)
	if err != nil {
		return domain.Ingestion{}, err
	}

	msg := n.toMessage(payload)
	return domain.Ingestion{
		Kind:      domain.IngestionMessage,
		EventType: domain.EventTypeMessageCreate,
		Message:   &msg,
	}, nil
}

// IsHandshake reports whether the body is a URL verification request and
// returns its challenge. A body holding nothing but a challenge also counts.
func (n *EventNormalizer) IsHandshake(rawBody []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawBody, &fields); err != nil {
		return "", false
	}

	var challenge string
	if raw, ok := fields["challenge"]; ok {
		if err := json.Unmarshal(raw, &challenge); err != nil {
			return "", false
		}
	}

	if len(fields) == 1 {
		_, ok := fields["challenge"]
		return challenge, ok
	}

	for _, key := range []string{"event", "event_type"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var eventType string
		if err := json.Unmarshal(raw, &eventType); err == nil && domain.EventType(eventType) == domain.EventTypeURLVerification {
			return challenge, true
		}
	}
	return "", false
}

// decodeMessage reads the message payload from data when present, from the
// top level otherwise, and validates the required identifiers
func (n *EventNormalizer) decodeMessage(rawBody []byte, data json.RawMessage) (*messagePayload, error) {
	source := rawBody
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		source = trimmed
	}

	var payload messagePayload
	if err := json.Unmarshal(source, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if err := n.validator.ValidateStruct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	return &payload, nil
}

func (n *EventNormalizer) toMessage(p *messagePayload) domain.NormalizedMessage {
	kind := parseMessageKind(p.Message.Type)
	text, supported := extractText(kind, p.Message.Content)

	conversationKind := domain.ConversationSingle
	if p.Chat.Type == "group" {
		conversationKind = domain.ConversationGroup
	}

	mentions := p.Mentions
	if len(mentions) == 0 {
		mentions = p.Message.Mentions
	}

	return domain.NormalizedMessage{
		ID:               p.Message.ID,
		ConversationID:   p.Chat.ID,
		ConversationKind: conversationKind,
		SenderID:         p.Sender.ID,
		SenderName:       p.Sender.Name,
		Text:             text,
		Kind:             kind,
		Supported:        supported,
		Mentions:         toMentions(mentions),
		SentAt:           parseSendTime(p.SendTime),
	}
}

func parseMessageKind(raw string) domain.MessageKind {
	switch kind := domain.MessageKind(raw); kind {
	case domain.MessageKindText, domain.MessageKindRichText, domain.MessageKindMarkdown,
		domain.MessageKindImage, domain.MessageKindFile, domain.MessageKindAudio, domain.MessageKindVideo:
		return kind
	default:
		return domain.MessageKindUnknown
	}
}

// extractText returns the plain text of a message and whether the kind can
// be answered at all
func extractText(kind domain.MessageKind, content json.RawMessage) (string, bool) {
	switch kind {
	case domain.MessageKindText:
		var c struct {
			Text json.RawMessage `json:"text"`
		}
		if err := json.Unmarshal(content, &c); err != nil {
			return "", true
		}
		var obj struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(c.Text, &obj); err == nil {
			return obj.Content, true
		}
		var plain string
		if err := json.Unmarshal(c.Text, &plain); err == nil {
			return plain, true
		}
		return "", true

	case domain.MessageKindRichText:
		var c struct {
			RichText struct {
				Elements []richTextElement `json:"elements"`
			} `json:"rich_text"`
		}
		if err := json.Unmarshal(content, &c); err != nil {
			return "", true
		}
		return joinRichText(c.RichText.Elements), true

	default:
		return "", false
	}
}

func joinRichText(elements []richTextElement) string {
	var sb strings.Builder
	for _, el := range elements {
		switch el.Type {
		case "text":
			sb.WriteString(el.TextContent.Content)
		case "style_text_content":
			sb.WriteString(el.StyleTextContent.Text)
		case "mention":
			sb.WriteString(el.MentionContent.Text)
		case "nl":
			sb.WriteString("\n")
		case "image":
			sb.WriteString(imagePlaceholder)
		}
	}
	return sb.String()
}

func toMentions(in []mentionPayload) []domain.Mention {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Mention, 0, len(in))
	for _, m := range in {
		id := m.Identity.ID
		if id == "" {
			id = m.ID
		}
		name := m.Name
		if name == "" {
			name = m.Identity.Name
		}
		out = append(out, domain.Mention{ID: id, Name: name})
	}
	return out
}

// parseSendTime accepts seconds or milliseconds since epoch
func parseSendTime(v int64) time.Time {
	switch {
	case v <= 0:
		return time.Time{}
	case v > 1e12:
		return time.UnixMilli(v)
	default:
		return time.Unix(v, 0)
	}
}

package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/internal/ports/output"
	"wps-bot-bridge/pkg/clock"
	"wps-bot-bridge/pkg/signature"

	"github.com/sirupsen/logrus"
)

// Default limits applied when the configuration leaves them unset
const (
	defaultLLMTimeout        = 120 * time.Second
	maxUserInputLength       = 4000
	maxReplyMessageLength    = 5000
	maxMessagesPerResponse   = 5
	sentenceBoundaryLookback = 200
)

// Default user-facing texts
const (
	DefaultFallbackReply    = "Sorry, I'm having trouble processing your request right now. Please try again later."
	DefaultRateLimitedReply = "Too many requests right now. Please try again in a moment."
	DefaultUnsupportedReply = "Sorry, I can only read text messages for now."
	DefaultResetReply       = "Conversation memory cleared. Let's start fresh!"
	DefaultHelpReply        = "Available commands:\n#help - Show this message\n#reset - Clear the conversation memory\n\nMention me in a group, or just message me directly."
)

// Verifier checks the signature of an inbound delivery
type Verifier interface {
	VerifyInbound(headers signature.InboundHeaders, rawBody []byte) error
}

// OrchestratorConfig holds the behavior knobs of the orchestrator
type OrchestratorConfig struct {
	AllowUnsignedHandshake bool
	SystemPrompt           string

	LLMTimeout       time.Duration
	Model            string
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	PresencePenalty  *float64
	FrequencyPenalty *float64

	Triggers              TriggerRules
	SingleChatReplyPrefix string
	ReplyKind             domain.ReplyKind

	MaxInputChars    int
	MaxReplyChars    int
	MaxReplyMessages int

	FallbackReply    string
	RateLimitedReply string
	UnsupportedReply string
	HelpReply        string
	ResetReply       string
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = defaultLLMTimeout
	}
	if c.ReplyKind == "" {
		c.ReplyKind = domain.ReplyKindText
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = maxUserInputLength
	}
	if c.MaxReplyChars <= 0 {
		c.MaxReplyChars = maxReplyMessageLength
	}
	if c.MaxReplyMessages <= 0 {
		c.MaxReplyMessages = maxMessagesPerResponse
	}
	if c.FallbackReply == "" {
		c.FallbackReply = DefaultFallbackReply
	}
	if c.RateLimitedReply == "" {
		c.RateLimitedReply = DefaultRateLimitedReply
	}
	if c.UnsupportedReply == "" {
		c.UnsupportedReply = DefaultUnsupportedReply
	}
	if c.HelpReply == "" {
		c.HelpReply = DefaultHelpReply
	}
	if c.ResetReply == "" {
		c.ResetReply = DefaultResetReply
	}
}

// OrchestratorDeps are the collaborators of the orchestrator.
// Deduplicator, MessageLog and Clock are optional.
type OrchestratorDeps struct {
	Verifier     Verifier
	Normalizer   *EventNormalizer
	Commands     *CommandClassifier
	Sessions     output.SessionStore
	LLM          output.LLMClient
	Platform     output.PlatformClient
	Deduplicator output.MessageDeduplicator
	MessageLog   output.MessageLogRepository
	Clock        clock.Clock
}

// Orchestrator struct - Application service implementing the event use cases
type Orchestrator struct {
	verifier   Verifier
	normalizer *EventNormalizer
	commands   *CommandClassifier
	sessions   output.SessionStore
	llm        output.LLMClient
	platform   output.PlatformClient
	dedupe     output.MessageDeduplicator
	messageLog output.MessageLogRepository
	clock      clock.Clock
	config     OrchestratorConfig
}

// NewOrchestrator func - Creates new orchestrator
func NewOrchestrator(deps OrchestratorDeps, config OrchestratorConfig) *Orchestrator {
	config.applyDefaults()

	if deps.Normalizer == nil {
		deps.Normalizer = NewEventNormalizer(nil)
	}
	if deps.Commands == nil {
		deps.Commands = NewCommandClassifier(nil, nil)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}

	return &Orchestrator{
		verifier:   deps.Verifier,
		normalizer: deps.Normalizer,
		commands:   deps.Commands,
		sessions:   deps.Sessions,
		llm:        deps.LLM,
		platform:   deps.Platform,
		dedupe:     deps.Deduplicator,
		messageLog: deps.MessageLog,
		clock:      deps.Clock,
		config:     config,
	}
}

// Ingest func - Use case: verify and normalize one webhook delivery
func (o *Orchestrator) Ingest(ctx context.Context, event domain.InboundEvent) (domain.Ingestion, error) {
	log := logrus.WithField("request_id", event.RequestID)
	log.WithField("state", domain.StateReceived).Debugf("Received event, %d bytes", len(event.Body))

	if o.config.AllowUnsignedHandshake {
		if challenge, ok := o.normalizer.IsHandshake(event.Body); ok {
			log.WithField("state", domain.StateHandshakeReplied).Info("URL verification handshake received")
			return domain.Ingestion{
				Kind:      domain.IngestionHandshake,
				EventType: domain.EventTypeURLVerification,
				Challenge: challenge,
			}, nil
		}
	}

	headers := signature.InboundHeaders{
		AppID:     event.Headers.AppID,
		Signature: event.Headers.Signature,
		Timestamp: event.Headers.Timestamp,
		Nonce:     event.Headers.Nonce,
	}
	if err := o.verifier.VerifyInbound(headers, event.Body); err != nil {
		log.WithField("state", domain.StateError).Warnf("Request verification failed: %v", err)
		return domain.Ingestion{}, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	log.WithField("state", domain.StateVerified).Debug("Signature verified")

	ingestion, err := o.normalizer.Normalize(event.Body)
	if err != nil {
		log.WithField("state", domain.StateError).Warnf("Dropping malformed event: %v", err)
		return domain.Ingestion{Kind: domain.IngestionIgnored, Reason: err.Error()}, nil
	}

	switch ingestion.Kind {
	case domain.IngestionHandshake:
		log.WithField("state", domain.StateHandshakeReplied).Info("URL verification handshake received")
	case domain.IngestionMessage:
		log.WithFields(logrus.Fields{
			"state":           domain.StateNormalized,
			"message_id":      ingestion.Message.ID,
			"conversation_id": ingestion.Message.ConversationID,
			"kind":            ingestion.Message.Kind,
		}).Info("Received message")
	default:
		log.Infof("Ignoring event: %s", ingestion.Reason)
	}

	return ingestion, nil
}

// HandleWebhook func - Use case: ingest a delivery and process its message inline
func (o *Orchestrator) HandleWebhook(ctx context.Context, event domain.InboundEvent) (domain.Ingestion, error) {
	ingestion, err := o.Ingest(ctx, event)
	if err != nil {
		return ingestion, err
	}
	if ingestion.Kind == domain.IngestionMessage {
		o.Process(ctx, *ingestion.Message)
	}
	return ingestion, nil
}

// Process func - Use case: route one normalized message and run it to completion
func (o *Orchestrator) Process(ctx context.Context, msg domain.NormalizedMessage) domain.ProcessResult {
	start := o.clock.Now()
	log := logrus.WithFields(logrus.Fields{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
	})

	result := o.route(ctx, msg, log)
	result.Duration = o.clock.Now().Sub(start)

	log.WithFields(logrus.Fields{
		"state":    result.State,
		"route":    result.Route,
		"duration": result.Duration,
	}).Info("Message processed")

	o.record(msg, result, log)
	return result
}

func (o *Orchestrator) route(ctx context.Context, msg domain.NormalizedMessage, log *logrus.Entry) domain.ProcessResult {
	if o.dedupe != nil && o.dedupe.Seen(msg.ID, o.clock.Now()) {
		log.Debug("Duplicate message ignored")
		return domain.ProcessResult{State: domain.StateDone, Route: domain.RouteDuplicate}
	}

	text, ok := o.config.Triggers.Apply(msg)
	if !ok {
		log.Debug("Message filtered by trigger rules")
		return domain.ProcessResult{State: domain.StateDone, Route: domain.RouteFiltered}
	}

	if !msg.Supported {
		log.Infof("Unsupported message kind: %s", msg.Kind)
		result := domain.ProcessResult{Route: domain.RouteUnsupported, ReplyText: o.config.UnsupportedReply}
		o.dispatch(ctx, msg, &result, log)
		return result
	}

	if text == "" {
		log.Debug("Empty message text ignored")
		return domain.ProcessResult{State: domain.StateDone, Route: domain.RouteFiltered}
	}

	switch o.commands.Classify(text) {
	case CommandHelp:
		result := domain.ProcessResult{Route: domain.RouteHelp, ReplyText: o.config.HelpReply}
		o.dispatch(ctx, msg, &result, log)
		return result

	case CommandReset:
		result := domain.ProcessResult{Route: domain.RouteReset, ReplyText: o.config.ResetReply}
		if err := o.sessions.Reset(ctx, msg.SessionKey()); err != nil {
			log.Errorf("Failed to reset session: %v", err)
			result.SessionError = fmt.Errorf("%w: %v", domain.ErrSession, err)
			result.ReplyText = o.config.FallbackReply
		} else {
			log.Info("Session reset")
		}
		o.dispatch(ctx, msg, &result, log)
		return result
	}

	return o.chat(ctx, msg, text, log)
}

// chat runs the LLM branch: context, completion, session update, dispatch
func (o *Orchestrator) chat(ctx context.Context, msg domain.NormalizedMessage, text string, log *logrus.Entry) domain.ProcessResult {
	result := domain.ProcessResult{Route: domain.RouteChat}
	input := truncateRunes(text, o.config.MaxInputChars)

	stateless := false
	history, err := o.sessions.GetContext(ctx, msg.SessionKey())
	if err != nil {
		log.Errorf("Session store unavailable, answering without context: %v", err)
		result.SessionError = fmt.Errorf("%w: %v", domain.ErrSession, err)
		stateless = true
		history = nil
	}
	log.WithField("state", domain.StateContextResolved).Debugf("Resolved %d turns of context", len(history))

	resp, err := o.callLLM(ctx, o.buildChatRequest(history, input))
	log.WithField("state", domain.StateLLMInvoked).Debug("LLM call finished")
	if err != nil {
		log.Errorf("LLM call failed: %v", err)
		result.LLMError = err
		result.ReplyText = o.fallbackFor(err)
	} else {
		result.ReplyText = strings.TrimSpace(resp.Content)
		if result.ReplyText == "" {
			result.LLMError = fmt.Errorf("%w: empty completion", domain.ErrLLMUnavailable)
			result.ReplyText = o.config.FallbackReply
		}
	}

	if !stateless {
		err := o.sessions.AppendTurns(ctx, msg.SessionKey(),
			domain.Turn{Role: domain.RoleUser, Text: input},
			domain.Turn{Role: domain.RoleAssistant, Text: result.ReplyText},
		)
		if err != nil {
			log.Errorf("Failed to update session: %v", err)
			result.SessionError = fmt.Errorf("%w: %v", domain.ErrSession, err)
		} else {
			log.WithField("state", domain.StateSessionUpdated).Debug("Session updated")
		}
	}

	o.dispatch(ctx, msg, &result, log)
	return result
}

// buildChatRequest prepends the system prompt to the stored history and the new input
func (o *Orchestrator) buildChatRequest(history []domain.Turn, input string) domain.ChatCompletionRequest {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	if o.config.SystemPrompt != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: o.config.SystemPrompt})
	}
	messages = append(messages, domain.TurnsToChatMessages(history)...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: input})

	request := domain.ChatCompletionRequest{
		Messages:         messages,
		Temperature:      o.config.Temperature,
		TopP:             o.config.TopP,
		MaxTokens:        o.config.MaxTokens,
		PresencePenalty:  o.config.PresencePenalty,
		FrequencyPenalty: o.config.FrequencyPenalty,
	}
	if o.config.Model != "" {
		model := o.config.Model
		request.Model = &model
	}
	return request
}

type completionOutcome struct {
	resp *domain.ChatCompletionResponse
	err  error
}

// callLLM bounds the completion by the configured timeout. A result that
// arrives after the deadline is discarded.
func (o *Orchestrator) callLLM(ctx context.Context, request domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.LLMTimeout)
	defer cancel()

	done := make(chan completionOutcome, 1)
	go func() {
		resp, err := o.llm.ChatCompletion(ctx, request)
		done <- completionOutcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", domain.ErrLLMTimeout, ctx.Err())
	}
}

func (o *Orchestrator) fallbackFor(err error) string {
	if errors.Is(err, domain.ErrLLMRateLimited) {
		return o.config.RateLimitedReply
	}
	return o.config.FallbackReply
}

// dispatch sends the reply, split into parts when it is long. The first
// failed part stops the rest. Failures are recorded, never rolled back.
func (o *Orchestrator) dispatch(ctx context.Context, msg domain.NormalizedMessage, result *domain.ProcessResult, log *logrus.Entry) {
	if result.ReplyText == "" {
		result.State = domain.StateDone
		return
	}

	text := result.ReplyText
	if !msg.IsGroup() && o.config.SingleChatReplyPrefix != "" {
		text = o.config.SingleChatReplyPrefix + text
	}

	parts := splitReply(text, o.config.MaxReplyChars, o.config.MaxReplyMessages, sentenceBoundaryLookback)
	for i, part := range parts {
		sent, err := o.platform.SendMessage(ctx, domain.OutgoingMessage{
			Receiver:  msg.Receiver(),
			Kind:      o.config.ReplyKind,
			Text:      part,
			InReplyTo: msg.ID,
		})
		if err != nil {
			log.Errorf("Failed to deliver reply part %d/%d: %v", i+1, len(parts), err)
			result.DeliveryError = err
			result.State = domain.StateError
			return
		}
		attempts := 0
		if sent != nil {
			attempts = sent.Attempts
		}
		log.WithFields(logrus.Fields{
			"state":    domain.StateReplyDispatched,
			"attempts": attempts,
		}).Debugf("Reply part %d/%d delivered", i+1, len(parts))
	}
	result.State = domain.StateDone
}

func (o *Orchestrator) record(msg domain.NormalizedMessage, result domain.ProcessResult, log *logrus.Entry) {
	if o.messageLog == nil || result.Route == domain.RouteDuplicate || result.Route == domain.RouteFiltered {
		return
	}
	if err := o.messageLog.Record(domain.NewMessageLog(msg, result)); err != nil {
		log.Warnf("Failed to record message log: %v", err)
	}
}

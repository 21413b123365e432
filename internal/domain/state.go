package domain

// State of the per-request orchestrator state machine
type State string

const (
	StateReceived         State = "received"
	StateVerified         State = "verified"
	StateNormalized       State = "normalized"
	StateHandshakeReplied State = "handshake_replied"
	StateContextResolved  State = "context_resolved"
	StateLLMInvoked       State = "llm_invoked"
	StateSessionUpdated   State = "session_updated"
	StateReplyDispatched  State = "reply_dispatched"
	StateDone             State = "done"
	StateError            State = "error"
)

// Route is the branch a normalized message takes through the orchestrator
type Route string

const (
	// RouteDuplicate - the message id was already processed
	RouteDuplicate Route = "duplicate"
	// RouteFiltered - trigger rules say the bot should stay silent
	RouteFiltered Route = "filtered"
	// RouteUnsupported - the message kind cannot be answered
	RouteUnsupported Route = "unsupported"
	// RouteHelp - built-in help command
	RouteHelp Route = "help"
	// RouteReset - built-in reset command
	RouteReset Route = "reset"
	// RouteChat - free text forwarded to the LLM
	RouteChat Route = "chat"
)

package application

import "strings"

// Command is a built-in bot command recognized before the LLM is called
type Command int

const (
	// CommandNone - ordinary chat text
	CommandNone Command = iota
	// CommandHelp - reply with usage text
	CommandHelp
	// CommandReset - clear the conversation context
	CommandReset
)

// Default trigger strings for built-in commands
var (
	DefaultHelpCommands  = []string{"#help", "/help", "#帮助"}
	DefaultResetCommands = []string{"#reset", "/reset", "/clear", "#清除记忆", "#清空"}
)

// CommandClassifier matches whole messages against the configured triggers.
// Matching ignores surrounding whitespace and ASCII case.
type CommandClassifier struct {
	help  []string
	reset []string
}

// NewCommandClassifier func - empty trigger lists fall back to the defaults
func NewCommandClassifier(help, reset []string) *CommandClassifier {
	if len(help) == 0 {
		help = DefaultHelpCommands
	}
	if len(reset) == 0 {
		reset = DefaultResetCommands
	}
	return &CommandClassifier{help: help, reset: reset}
}

// Classify returns the command text names, or CommandNone
func (c *CommandClassifier) Classify(text string) Command {
	text = strings.TrimSpace(text)
	if text == "" {
		return CommandNone
	}
	if matchAny(text, c.reset) {
		return CommandReset
	}
	if matchAny(text, c.help) {
		return CommandHelp
	}
	return CommandNone
}

func matchAny(text string, triggers []string) bool {
	for _, t := range triggers {
		if strings.EqualFold(text, strings.TrimSpace(t)) {
			return true
		}
	}
	return false
}

package application

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"wps-bot-bridge/internal/domain"
)

// AllGroups in the group whitelist admits every group
const AllGroups = "ALL_GROUP"

// TriggerRules decide whether the bot answers a message at all
type TriggerRules struct {
	GroupWhitelist     []string
	GroupAtOff         bool
	SingleChatPrefixes []string
}

// Apply returns the text to answer and whether the message passes.
// Group messages need a whitelisted group and an @-mention unless
// GroupAtOff; the mention text is stripped. Single chat messages need one
// of the prefixes, an empty prefix matching everything; the prefix is stripped.
func (r TriggerRules) Apply(msg domain.NormalizedMessage) (string, bool) {
	text := msg.Text

	if msg.IsGroup() {
		if !r.groupAllowed(msg.ConversationID) {
			return "", false
		}
		if !r.GroupAtOff && len(msg.Mentions) == 0 {
			return "", false
		}
		return strings.TrimSpace(stripMentions(text, msg.Mentions)), true
	}

	prefix, ok := matchPrefix(text, r.SingleChatPrefixes)
	if !ok {
		return "", false
	}
	if prefix != "" {
		text = strings.Replace(text, prefix, "", 1)
	}
	return strings.TrimSpace(text), true
}

func (r TriggerRules) groupAllowed(groupID string) bool {
	for _, g := range r.GroupWhitelist {
		if g == AllGroups || g == groupID {
			return true
		}
	}
	return false
}

// matchPrefix returns the first prefix text starts with. An empty prefix,
// or an empty list, matches with "".
func matchPrefix(text string, prefixes []string) (string, bool) {
	if len(prefixes) == 0 {
		return "", true
	}
	for _, p := range prefixes {
		if p == "" {
			return "", true
		}
		if strings.HasPrefix(text, p) {
			return p, true
		}
	}
	return "", false
}

// stripMentions removes "@name" followed by a space or U+2005 for every mention
func stripMentions(text string, mentions []domain.Mention) string {
	for _, m := range mentions {
		if m.Name == "" {
			continue
		}
		re := regexp.MustCompile("@" + regexp.QuoteMeta(m.Name) + `(\x{2005}|\s|$)`)
		text = re.ReplaceAllString(text, "")
	}
	return text
}

// truncateRunes keeps at most max runes of s
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// sentence endings preferred as split points, ASCII and CJK
const sentenceEnds = ".!?。！？\n"

// splitReply cuts s into at most maxParts chunks of at most maxLen runes,
// preferring to cut right after a sentence ending within lookback runes of
// the limit. Text beyond maxParts chunks is dropped.
func splitReply(s string, maxLen, maxParts, lookback int) []string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return []string{s}
	}

	runes := []rune(s)
	parts := make([]string, 0, maxParts)
	for len(runes) > 0 && (maxParts <= 0 || len(parts) < maxParts) {
		if len(runes) <= maxLen {
			parts = append(parts, string(runes))
			break
		}

		cut := maxLen
		for i := maxLen - 1; i >= maxLen-lookback && i > 0; i-- {
			if strings.ContainsRune(sentenceEnds, runes[i]) {
				cut = i + 1
				// keep a following space with the sentence
				if cut < len(runes) && cut < maxLen && runes[cut] == ' ' {
					cut++
				}
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	return parts
}

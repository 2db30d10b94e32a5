package chat

import "strings"

const (
	openingPlaceholder  = "Hello"
	trailingPlaceholder = "Can you expand on that?"
	mergeSeparator      = "\n\n"
)

// NormalizeHistory builds the turn sequence sent to the completion service
// from prior stored messages and the new user message.
//
// The result is never empty, always starts with a user turn and never has
// two adjacent turns with the same role. Runs of same-role turns are merged
// into one turn joined by a blank line. A leading assistant turn gets a
// synthetic "Hello" user turn in front of it, and a trailing assistant turn
// gets a synthetic follow-up user turn after it.
func NormalizeHistory(prior []StoredMessage, newUserMessage string) []Turn {
	pending := make([]Turn, 0, len(prior)+1)
	for _, msg := range prior {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		pending = append(pending, Turn{Role: RoleFromSender(msg.Sender), Content: content})
	}
	if content := strings.TrimSpace(newUserMessage); content != "" {
		pending = append(pending, Turn{Role: RoleUser, Content: content})
	}

	out := make([]Turn, 0, len(pending)+2)
	if len(pending) == 0 || pending[0].Role != RoleUser {
		out = append(out, Turn{Role: RoleUser, Content: openingPlaceholder})
	}
	for _, turn := range pending {
		last := len(out) - 1
		if last >= 0 && out[last].Role == turn.Role {
			out[last].Content += mergeSeparator + turn.Content
			continue
		}
		out = append(out, turn)
	}

	if out[len(out)-1].Role == RoleAssistant {
		out = append(out, Turn{Role: RoleUser, Content: trailingPlaceholder})
	}
	return out
}

// Package chat turns a raw chat message plus stored history into a
// completion request for the language model, and turns the model's reply
// (or failure) into an Outcome that is always safe to show to the user.
package chat

import "strings"

// Role is the logical author of a conversation turn.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
)

// Stored sender tags used by the history store.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

func (r Role) String() string {
	if r == RoleAssistant {
		return "assistant"
	}
	return "user"
}

// Sender returns the tag the history store persists for this role.
func (r Role) Sender() string {
	if r == RoleAssistant {
		return SenderBot
	}
	return SenderUser
}

// RoleFromSender maps a stored sender tag to a Role. Only the bot sender
// (or the literal "assistant") is an assistant turn; anything else,
// including unknown tags, is treated as the user.
func RoleFromSender(sender string) Role {
	switch strings.ToLower(strings.TrimSpace(sender)) {
	case SenderBot, "assistant":
		return RoleAssistant
	default:
		return RoleUser
	}
}

// StoredMessage is one persisted chat message as read from the history store.
type StoredMessage struct {
	Sender  string
	Content string
}

// Turn is one message of a normalized conversation.
type Turn struct {
	Role    Role
	Content string
}

package server

import (
	"encoding/json"
	"strconv"
	"strings"

	"glucoguide/backend/internal/chat"
)

const (
	defaultSessionTitle  = "New conversation"
	sessionTitleMaxLen   = 38
	sessionPreviewMaxLen = 96
	maxChatMessageChars  = 4000
)

type chatSessionCreateRequest struct {
	Title string `json:"title"`
}

type chatMessageSendRequest struct {
	Message string `json:"message"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatReplyResponse struct {
	SessionID     string        `json:"session_id"`
	UserMessageID string        `json:"user_message_id"`
	MessageID     string        `json:"message_id"`
	Message       string        `json:"message"`
	Sources       []chat.Source `json:"sources"`
	Greeting      bool          `json:"greeting"`
	Fallback      bool          `json:"fallback"`
	Usage         *usagePayload `json:"usage"`
}

func mustMarshalJSON(input any) string {
	encoded, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func parseSources(raw []byte) []chat.Source {
	if len(raw) == 0 {
		return []chat.Source{}
	}
	var sources []chat.Source
	if err := json.Unmarshal(raw, &sources); err != nil || sources == nil {
		return []chat.Source{}
	}
	return sources
}

func parseLimit(raw string, fallback, max int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || parsed <= 0 {
		return fallback
	}
	if parsed > max {
		return max
	}
	return parsed
}

func collapseWhitespace(input string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
}

func deriveSessionTitle(firstUserInput string) string {
	normalized := collapseWhitespace(firstUserInput)
	if normalized == "" {
		return defaultSessionTitle
	}
	runes := []rune(normalized)
	if len(runes) <= sessionTitleMaxLen {
		return normalized
	}
	return strings.TrimSpace(string(runes[:sessionTitleMaxLen])) + "..."
}

func normalizeSessionPreview(input *string) string {
	if input == nil {
		return "No messages yet"
	}
	normalized := collapseWhitespace(*input)
	if normalized == "" {
		return "No messages yet"
	}
	runes := []rune(normalized)
	if len(runes) <= sessionPreviewMaxLen {
		return normalized
	}
	return strings.TrimSpace(string(runes[:sessionPreviewMaxLen])) + "..."
}

func usageFromOutcome(outcome chat.Outcome) *usagePayload {
	usage, ok := outcome.Usage()
	if !ok {
		return nil
	}
	return &usagePayload{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
}

package server

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"glucoguide/backend/internal/chat"
)

const usageLogTimeout = 3 * time.Second

// recordUsageLog writes one "AiUsageLog" row per chat turn. Failures are
// logged and counted but never reach the caller.
func (a *App) recordUsageLog(ctx context.Context, userID, sessionID, question string, outcome chat.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageLogTimeout)
	defer cancel()

	usage, _ := outcome.Usage()
	var model, errorKind any
	if m := outcome.Model(); m != "" {
		model = m
	}
	if kind := outcome.ErrorKind(); kind != "" {
		errorKind = kind
	}

	_, err := a.db.Exec(
		ctx,
		`INSERT INTO "AiUsageLog" (
			id, "userId", "sessionId", model,
			"promptTokens", "completionTokens", "totalTokens",
			"greetingBypass", "errorKind", "questionChars", "createdAt"
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		uuid.NewString(),
		userID,
		sessionID,
		model,
		usage.PromptTokens,
		usage.CompletionTokens,
		usage.TotalTokens,
		outcome.GreetingBypass(),
		errorKind,
		utf8.RuneCountInString(question),
	)
	if err != nil {
		a.metrics.RecordUsageLogFailure()
		a.log.Warn().Err(err).Str("session_id", sessionID).Msg("ai usage log insert failed")
	}
}

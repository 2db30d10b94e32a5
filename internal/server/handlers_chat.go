package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"glucoguide/backend/internal/chat"
	"glucoguide/backend/internal/logger"
)

const persistTurnTimeout = 5 * time.Second

type chatSessionRecord struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type chatSessionListItem struct {
	SessionID     string
	Title         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastPreview   *string
	LastMessageAt time.Time
	MessageCount  int
}

type chatHTTPError struct {
	Status int
	Detail string
}

func (e *chatHTTPError) Error() string {
	return e.Detail
}

func (a *App) createChatSession(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload chatSessionCreateRequest
	if c.Request.ContentLength > 0 && !mustJSON(c, &payload) {
		return
	}
	title := collapseWhitespace(payload.Title)
	if title == "" {
		title = defaultSessionTitle
	}

	sessionID := uuid.NewString()
	var createdAt time.Time
	err := a.db.QueryRow(
		c.Request.Context(),
		`INSERT INTO "ChatSession" (id, "userId", title, "createdAt", "updatedAt")
		 VALUES ($1, $2, $3, NOW(), NOW())
		 RETURNING "createdAt"`,
		sessionID,
		user.ID,
		title,
	).Scan(&createdAt)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", user.ID).Msg("create chat session failed")
		writeError(c, http.StatusInternalServerError, "Failed to create chat session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"title":      title,
		"created_at": createdAt.UTC(),
	})
}

func (a *App) listChatSessions(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	limit := parseLimit(c.Query("limit"), 50, 100)

	rows, err := a.db.Query(
		c.Request.Context(),
		`SELECT
			s.id,
			s.title,
			s."createdAt",
			s."updatedAt",
			(
				SELECT m.content
				FROM "ChatMessage" m
				WHERE m."sessionId" = s.id
				ORDER BY m."createdAt" DESC, m.id DESC
				LIMIT 1
			) AS last_preview,
			COALESCE(
				(
					SELECT MAX(m."createdAt")
					FROM "ChatMessage" m
					WHERE m."sessionId" = s.id
				),
				s."updatedAt"
			) AS last_message_at,
			(
				SELECT COUNT(*)::int
				FROM "ChatMessage" m
				WHERE m."sessionId" = s.id
			) AS message_count
		 FROM "ChatSession" s
		 WHERE s."userId" = $1
		 ORDER BY last_message_at DESC
		 LIMIT $2`,
		user.ID,
		limit,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat sessions")
		return
	}
	defer rows.Close()

	items := make([]gin.H, 0, 24)
	for rows.Next() {
		record := chatSessionListItem{}
		if err := rows.Scan(
			&record.SessionID,
			&record.Title,
			&record.CreatedAt,
			&record.UpdatedAt,
			&record.LastPreview,
			&record.LastMessageAt,
			&record.MessageCount,
		); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to parse chat sessions")
			return
		}
		items = append(items, gin.H{
			"session_id":      record.SessionID,
			"title":           record.Title,
			"preview":         normalizeSessionPreview(record.LastPreview),
			"created_at":      record.CreatedAt.UTC(),
			"updated_at":      record.UpdatedAt.UTC(),
			"last_message_at": record.LastMessageAt.UTC(),
			"message_count":   record.MessageCount,
		})
	}
	if err := rows.Err(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": items,
	})
}

func (a *App) getChatMessages(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	session, err := a.loadChatSessionForUser(c.Request.Context(), user.ID, sessionID)
	if err != nil {
		a.writeChatError(c, err)
		return
	}

	rows, err := a.db.Query(
		c.Request.Context(),
		`SELECT id, sender, content, "sourcesJson", "createdAt"
		 FROM "ChatMessage"
		 WHERE "sessionId" = $1
		 ORDER BY "createdAt" ASC, id ASC`,
		session.ID,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat messages")
		return
	}
	defer rows.Close()

	items := make([]gin.H, 0)
	for rows.Next() {
		var messageID, sender, content string
		var sourcesRaw []byte
		var createdAt time.Time
		if err := rows.Scan(&messageID, &sender, &content, &sourcesRaw, &createdAt); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to parse chat messages")
			return
		}
		item := gin.H{
			"message_id": messageID,
			"sender":     sender,
			"role":       chat.RoleFromSender(sender).String(),
			"content":    content,
			"created_at": createdAt.UTC(),
		}
		if chat.RoleFromSender(sender) == chat.RoleAssistant {
			item["sources"] = parseSources(sourcesRaw)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"title":      session.Title,
		"created_at": session.CreatedAt.UTC(),
		"messages":   items,
	})
}

// sendChatMessage runs one chat turn. Once the session is resolved the
// response is always 200: pipeline failures come back as a fallback reply.
func (a *App) sendChatMessage(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload chatMessageSendRequest
	if !mustJSON(c, &payload) {
		return
	}
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		writeError(c, http.StatusBadRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(message) > maxChatMessageChars {
		writeError(c, http.StatusBadRequest, "message is too long")
		return
	}

	ctx := c.Request.Context()
	sessionID := strings.TrimSpace(c.Param("session_id"))
	session, err := a.loadChatSessionForUser(ctx, user.ID, sessionID)
	if err != nil {
		a.writeChatError(c, err)
		return
	}

	chatLog := logger.Component(a.log, "chat").With().
		Str("session_id", session.ID).
		Str("user_id", user.ID).
		Logger()

	history, err := a.history.loadRecentMessages(ctx, session.ID, a.historyLimit())
	if err != nil {
		chatLog.Error().Err(err).Msg("load chat history failed")
		writeError(c, http.StatusInternalServerError, "Failed to load chat history")
		return
	}

	medical, err := a.medical.loadMedicalContext(ctx, user.ID)
	if err != nil {
		chatLog.Warn().Err(err).Msg("medical context unavailable; answering without it")
		medical = nil
	}

	outcome := a.pipeline.GenerateResponse(ctx, message, history, medical)

	// Persist even when the client disconnected during the completion call.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTurnTimeout)
	defer cancelPersist()
	userMessageID, botMessageID, err := a.persistChatTurn(persistCtx, session, user.ID, message, outcome)
	if err != nil {
		chatLog.Error().Err(err).Msg("persist chat turn failed")
		writeError(c, http.StatusInternalServerError, "Failed to save chat messages")
		return
	}

	a.recordUsageLog(ctx, user.ID, session.ID, message, outcome)

	event := chatLog.Info()
	if outcome.Failed() {
		event = chatLog.Warn().
			Interface("error", outcome.Diagnostics[chat.DiagError]).
			Str("error_kind", outcome.ErrorKind())
	}
	event.
		Bool("greeting", outcome.GreetingBypass()).
		Int("sources", len(outcome.Sources)).
		Str("model", outcome.Model()).
		Msg("chat reply generated")

	c.JSON(http.StatusOK, chatReplyResponse{
		SessionID:     session.ID,
		UserMessageID: userMessageID,
		MessageID:     botMessageID,
		Message:       outcome.MessageText,
		Sources:       outcome.Sources,
		Greeting:      outcome.GreetingBypass(),
		Fallback:      outcome.Failed(),
		Usage:         usageFromOutcome(outcome),
	})
}

// persistChatTurn stores the user message and the reply together and moves
// the session title off the placeholder on the first turn.
func (a *App) persistChatTurn(
	ctx context.Context,
	session chatSessionRecord,
	userID, message string,
	outcome chat.Outcome,
) (string, string, error) {
	tx, err := a.db.Begin(ctx)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	userMessageID, _, err := insertChatMessage(ctx, tx, session.ID, userID, chat.RoleUser, message, nil)
	if err != nil {
		return "", "", err
	}
	sources := outcome.Sources
	if sources == nil {
		sources = []chat.Source{}
	}
	botMessageID, _, err := insertChatMessage(ctx, tx, session.ID, userID, chat.RoleAssistant, outcome.MessageText, sources)
	if err != nil {
		return "", "", err
	}

	if _, err := tx.Exec(
		ctx,
		`UPDATE "ChatSession"
		 SET title = CASE WHEN title = $3 THEN $2 ELSE title END,
		     "updatedAt" = NOW()
		 WHERE id = $1`,
		session.ID,
		deriveSessionTitle(message),
		defaultSessionTitle,
	); err != nil {
		return "", "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", "", err
	}
	return userMessageID, botMessageID, nil
}

func (a *App) loadChatSessionForUser(ctx context.Context, userID, sessionID string) (chatSessionRecord, error) {
	if sessionID == "" {
		return chatSessionRecord{}, &chatHTTPError{Status: http.StatusBadRequest, Detail: "session_id is required"}
	}
	record := chatSessionRecord{}
	err := a.db.QueryRow(
		ctx,
		`SELECT id, "userId", title, "createdAt", "updatedAt"
		 FROM "ChatSession"
		 WHERE id = $1 AND "userId" = $2`,
		sessionID,
		userID,
	).Scan(&record.ID, &record.UserID, &record.Title, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chatSessionRecord{}, &chatHTTPError{Status: http.StatusNotFound, Detail: "Chat session not found"}
	}
	if err != nil {
		return chatSessionRecord{}, err
	}
	return record, nil
}

func insertChatMessage(
	ctx context.Context,
	q dbQuerier,
	sessionID, userID string,
	role chat.Role,
	content string,
	sources []chat.Source,
) (string, time.Time, error) {
	messageID := uuid.NewString()

	var sourcesValue any
	if sources != nil {
		sourcesValue = mustMarshalJSON(sources)
	}

	var createdAt time.Time
	err := q.QueryRow(
		ctx,
		`INSERT INTO "ChatMessage" (id, "sessionId", "userId", sender, content, "sourcesJson", "createdAt")
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, clock_timestamp())
		 RETURNING "createdAt"`,
		messageID,
		sessionID,
		userID,
		role.Sender(),
		strings.TrimSpace(content),
		sourcesValue,
	).Scan(&createdAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return messageID, createdAt, nil
}

func (a *App) writeChatError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	var httpErr *chatHTTPError
	if errors.As(err, &httpErr) {
		writeError(c, httpErr.Status, httpErr.Detail)
		return
	}
	a.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("chat request failed")
	writeError(c, http.StatusInternalServerError, "Failed to process chat request")
}

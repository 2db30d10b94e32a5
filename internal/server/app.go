package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"glucoguide/backend/internal/chat"
	"glucoguide/backend/internal/config"
	"glucoguide/backend/internal/logger"
	"glucoguide/backend/internal/metrics"
)

const defaultHistoryLimit = 10

type dbQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type App struct {
	cfg       config.Config
	db        *pgxpool.Pool
	log       zerolog.Logger
	metrics   *metrics.Metrics
	completer chat.Completer
	history   *historyStore
	medical   *medicalStore
	matcher   *chat.ResourceMatcher
	pipeline  *chat.Pipeline
}

type AuthUser struct {
	ID    string
	Email *string
	Name  string
}

type Option func(*App)

func WithLogger(log zerolog.Logger) Option {
	return func(a *App) { a.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCompleter replaces the HTTP completion client built from the config.
func WithCompleter(completer chat.Completer) Option {
	return func(a *App) { a.completer = completer }
}

func New(cfg config.Config, db *pgxpool.Pool, opts ...Option) *App {
	app := &App{cfg: cfg, db: db, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(app)
	}
	if app.completer == nil {
		app.completer = chat.NewHTTPCompletionClient(cfg.CompletionConfig())
	}

	var q dbQuerier
	if db != nil {
		q = db
	}
	app.history = &historyStore{q: q}
	app.medical = &medicalStore{q: q}
	app.matcher = chat.NewResourceMatcher(&resourceStore{q: q})
	app.pipeline = chat.NewPipeline(
		app.completer,
		app.matcher,
		chat.WithLogger(logger.Component(app.log, "chat")),
		chat.WithMetrics(app.metrics),
	)
	return app
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), a.requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)
	if a.cfg.MetricsEnabled && a.metrics != nil {
		router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	}

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware())

	api.POST("/chat/sessions", a.createChatSession)
	api.GET("/chat/sessions", a.listChatSessions)
	api.GET("/chat/sessions/:session_id/messages", a.getChatMessages)
	api.POST("/chat/sessions/:session_id/messages", a.sendChatMessage)
	api.GET("/profile/medical", a.getMedicalProfile)
	api.GET("/resources/search", a.searchResources)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "glucoguide-api",
	})
}

func (a *App) requestLogger() gin.HandlerFunc {
	httpLog := logger.Component(a.log, "http")
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		elapsed := time.Since(started)

		status := c.Writer.Status()
		route := c.FullPath()
		a.metrics.RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		event := httpLog.Info()
		if status >= http.StatusInternalServerError {
			event = httpLog.Error()
		} else if status >= http.StatusBadRequest {
			event = httpLog.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				writeError(c, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		user, err := a.getOrCreateUser(c.Request.Context(), sub, claims)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set("authUser", user)
		c.Next()
	}
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

func toOptionalString(raw any) *string {
	if s, ok := raw.(string); ok {
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

func (a *App) getOrCreateUser(ctx context.Context, userID string, claims jwt.MapClaims) (AuthUser, error) {
	if a.db == nil {
		return AuthUser{}, errors.New("User store unavailable")
	}
	user := AuthUser{}
	err := a.db.QueryRow(
		ctx,
		`SELECT id, email, name FROM "User" WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Email, &user.Name)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return AuthUser{}, err
	}
	if !a.cfg.AuthAutoCreateUser {
		return AuthUser{}, errors.New("User not found")
	}

	email := toOptionalString(claims["email"])
	name := ""
	if rawName, ok := claims["name"].(string); ok {
		name = strings.TrimSpace(rawName)
	}
	if name == "" {
		name = fmt.Sprintf("user-%s", truncate(userID, 8))
	}

	if _, err := a.db.Exec(
		ctx,
		`INSERT INTO "User" (id, email, name, "createdAt")
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		userID,
		email,
		name,
	); err != nil {
		return AuthUser{}, err
	}

	return AuthUser{ID: userID, Email: email, Name: name}, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func authUserFromContext(c *gin.Context) (AuthUser, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return AuthUser{}, false
	}
	user, ok := raw.(AuthUser)
	return user, ok
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func (a *App) historyLimit() int {
	if a.cfg.ChatHistoryLimit <= 0 {
		return defaultHistoryLimit
	}
	return a.cfg.ChatHistoryLimit
}

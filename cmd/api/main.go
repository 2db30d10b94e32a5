package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glucoguide/backend/internal/config"
	"glucoguide/backend/internal/db"
	"glucoguide/backend/internal/logger"
	"glucoguide/backend/internal/metrics"
	"glucoguide/backend/internal/server"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.Options{
		MaxConns:        int32(cfg.DBMaxConns),
		ApplicationName: "glucoguide-api",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("database ping failed")
	}
	if cfg.AutoApplySchema {
		if err := db.ApplySchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("apply schema failed")
		}
	}
	if err := server.ValidateRuntimeSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("database schema mismatch")
	}
	if cfg.AutoPGStatements {
		if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_stat_statements`); err != nil {
			log.Warn().Err(err).Msg("optional extension pg_stat_statements not enabled")
		}
	}

	opts := []server.Option{server.WithLogger(log)}
	if cfg.MetricsEnabled {
		opts = append(opts, server.WithMetrics(metrics.New()))
	}
	app := server.New(cfg, pool, opts...)
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Str("env", cfg.AppEnv).
			Str("model", cfg.LLMModel).
			Msg("glucoguide api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

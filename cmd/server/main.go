package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gwi.com/myblog/internal/api"
	"gwi.com/myblog/internal/config"
	"gwi.com/myblog/internal/core"
	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/room"
	"gwi.com/myblog/internal/store"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	logging.Init(config.AppConfig.LogLevel, config.AppConfig.LogFormat, os.Stderr)
	logging.Info().Str("env", config.AppConfig.Env).Msg("Service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer dbStore.Close()

	health := map[string]api.Pinger{"database": dbStore}

	// Summaries are optional; without a key posts keep an empty summary.
	var summarizer core.Summarizer
	if config.AppConfig.GeminiAPIKey != "" {
		llmService, err := core.NewLLMService(ctx, config.AppConfig.GeminiAPIKey)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize LLM service")
		}
		defer llmService.Close()
		summarizer = llmService
	} else {
		logging.Warn().Msg("GEMINI_API_KEY not set, post summaries disabled")
	}

	var roomBuffer room.Buffer = room.NewMemoryBuffer()
	if config.AppConfig.RedisURL != "" {
		redisBuffer, err := room.NewRedisBuffer(ctx, config.AppConfig.RedisURL)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisBuffer.Close()
		roomBuffer = redisBuffer
		health["redis"] = redisBuffer
	}

	blogService := core.NewBlogService(dbStore, summarizer)
	apiHandler := api.NewAPIHandler(api.Services{
		Users:  core.NewUserService(dbStore),
		Chat:   core.NewPrivateChatService(dbStore),
		Blog:   blogService,
		Stats:  core.NewStatsService(dbStore),
		Room:   room.New(roomBuffer),
		Health: health,
	})
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", serverAddr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight summary generations finish before the store closes.
	blogService.Wait()

	logging.Info().Msg("Server exiting gracefully")
}

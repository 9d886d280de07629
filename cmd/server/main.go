package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/victordov/chatbot-construction-sub001/internal/ai"
	"github.com/victordov/chatbot-construction-sub001/internal/ai/gemini"
	"github.com/victordov/chatbot-construction-sub001/internal/ai/openai"
	"github.com/victordov/chatbot-construction-sub001/internal/api"
	"github.com/victordov/chatbot-construction-sub001/internal/bot"
	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/config"
	"github.com/victordov/chatbot-construction-sub001/internal/handoff"
	"github.com/victordov/chatbot-construction-sub001/internal/relay"
	"github.com/victordov/chatbot-construction-sub001/internal/secure"
	"github.com/victordov/chatbot-construction-sub001/internal/session"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/internal/suggestion"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load .env if present so API keys can live outside the config file
	_ = godotenv.Load()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting chatbot server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Create SQLite storage
	if err := os.MkdirAll(cfg.Storage.SQLiteBasePath, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", cfg.Storage.SQLiteBasePath))
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.Storage.SQLiteBasePath, "chatbot.db")

	db, err := sqlite.Open(dbPath, log)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Using SQLite storage", logger.String("path", dbPath))

	sessionStorage := sqlite.NewSessionStorage(db, log)
	conversationStorage := sqlite.NewConversationStorage(db, log)
	suggestionStorage := sqlite.NewSuggestionStorage(db, log)
	companyStorage := sqlite.NewCompanyStorage(db, log)
	workflowStorage := sqlite.NewWorkflowStorage(db, log)
	columnStorage := sqlite.NewColumnStorage(db, log)

	// Create WebSocket server
	wsServer := websocket.NewServer(log)

	// Create AI providers
	botProvider := buildProvider(cfg.Bot.Provider, cfg, log)
	suggestionProvider := buildProvider(cfg.Suggestions.Provider, cfg, log)

	// Create core services
	chatService := chat.NewService(conversationStorage, wsServer, log, cfg.Chat.HistoryLimit)
	coordinator := handoff.NewCoordinator(
		conversationStorage,
		wsServer,
		time.Duration(cfg.Chat.DisconnectGraceMinutes)*time.Minute,
		log,
	)
	defer coordinator.Stop()

	responder := bot.NewResponder(botProvider, bot.Config{
		Model:       cfg.Bot.Model,
		Temperature: cfg.Bot.Temperature,
		MaxTokens:   cfg.Bot.MaxTokens,
		Greeting:    cfg.Bot.Greeting,
		Fallback:    cfg.Bot.Fallback,
		PromptPath:  cfg.Bot.PromptPath,
		ContextSize: cfg.Bot.ContextSize,
		Timeout:     time.Duration(cfg.Bot.TimeoutSecs) * time.Second,
	}, log)

	encryptionService := secure.NewService(wsServer, log)

	suggestionService := suggestion.NewService(
		suggestionProvider,
		suggestionStorage,
		conversationStorage,
		chatService,
		coordinator,
		wsServer,
		suggestion.Config{
			Model:       cfg.Suggestions.Model,
			Temperature: cfg.Suggestions.Temperature,
			MaxTokens:   cfg.Suggestions.MaxTokens,
			ContextSize: cfg.Suggestions.ContextSize,
		},
		log,
	)

	sessionService := session.NewService(sessionStorage, log)

	// Wire the socket dispatcher and start the hub
	relayHandler := relay.NewHandler(
		chatService,
		coordinator,
		suggestionService,
		responder,
		encryptionService,
		wsServer,
		cfg.Bot.Enabled,
		cfg.Encryption.Enabled,
		log,
	)
	wsServer.SetMessageHandler(relayHandler)
	go wsServer.Run()

	// Create API router
	handler := api.NewHandler(sessionService, chatService, relayHandler, cfg, log)
	adminHandler := api.NewAdminHandler(conversationStorage, columnStorage, log)
	companyHandler := api.NewCompanyHandler(companyStorage, log)
	workflowHandler := api.NewWorkflowHandler(workflowStorage, log)
	router := api.NewRouter(handler, adminHandler, companyHandler, workflowHandler, wsServer, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server stopped")
}

// buildProvider returns the chat provider for a configured name, or
// nil when the provider has no usable API key.
func buildProvider(name string, cfg *config.Config, log *logger.Logger) ai.ChatProvider {
	switch name {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil
		}
		return openai.NewClient(cfg.OpenAI.APIKey, log, cfg.OpenAI.BaseURL)
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil
		}
		return gemini.NewClient(cfg.Gemini.APIKey, log)
	}
	return nil
}

package bot

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/victordov/chatbot-construction-sub001/internal/ai"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

const defaultSystemPrompt = `You are a helpful customer support assistant for a property rental company. ` +
	`Answer the visitor's questions concisely and politely. If you do not know the answer, ` +
	`say so and offer to connect the visitor with a human operator.`

// Config holds automated responder parameters
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Greeting    string
	Fallback    string
	PromptPath  string
	ContextSize int
	Timeout     time.Duration
}

// Responder produces automated replies for unclaimed conversations.
// Provider failures degrade to the configured fallback text rather
// than leaving the visitor without an answer.
type Responder struct {
	provider     ai.ChatProvider
	config       Config
	systemPrompt string
	logger       *logger.Logger
}

// NewResponder creates a new automated responder. The system prompt is
// read from config.PromptPath when set.
func NewResponder(provider ai.ChatProvider, config Config, log *logger.Logger) *Responder {
	systemPrompt := defaultSystemPrompt
	if config.PromptPath != "" {
		if raw, err := os.ReadFile(config.PromptPath); err == nil {
			systemPrompt = strings.TrimSpace(string(raw))
		} else {
			log.Warn("Failed to read bot prompt file, using default",
				logger.String("path", config.PromptPath), logger.Error(err))
		}
	}

	return &Responder{
		provider:     provider,
		config:       config,
		systemPrompt: systemPrompt,
		logger:       log.Named("bot"),
	}
}

// Greeting returns the opening message for a new conversation
func (r *Responder) Greeting() string {
	return r.config.Greeting
}

// Respond generates a reply to the latest visitor message given the
// recent conversation history.
func (r *Responder) Respond(ctx context.Context, history []*sqlite.MessageRecord, latest string) string {
	if r.provider == nil {
		return r.config.Fallback
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	messages := []ai.ChatMessage{{Role: ai.RoleSystem, Content: r.systemPrompt}}

	start := len(history)
	if r.config.ContextSize > 0 && start > r.config.ContextSize {
		history = history[start-r.config.ContextSize:]
	}
	for _, record := range history {
		role := ai.RoleUser
		if record.Sender != sqlite.SenderUser {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: record.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: latest})

	reply, err := r.provider.ChatCompletion(ctx, messages, ai.ChatConfig{
		Model:       r.config.Model,
		Temperature: r.config.Temperature,
		MaxTokens:   r.config.MaxTokens,
	})
	if err != nil {
		r.logger.Error("Chat completion failed, using fallback", logger.Error(err))
		return r.config.Fallback
	}
	return reply
}

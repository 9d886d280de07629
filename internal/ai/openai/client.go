package openai

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/victordov/chatbot-construction-sub001/internal/ai"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Client handles chat completions against OpenAI-compatible APIs
type Client struct {
	client *openai.Client
	logger *logger.Logger
}

// NewClient creates a new OpenAI client. An empty baseURL falls back to
// the OPENAI_API_BASE env var, then to the official endpoint.
func NewClient(apiKey string, logger *logger.Logger, baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = strings.TrimRight(os.Getenv("OPENAI_API_BASE"), "/")
	}

	config := openai.DefaultConfig(apiKey)
	if base != "" {
		config.BaseURL = base + "/v1"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		logger: logger.Named("openai"),
	}
}

// ChatCompletion implements ai.ChatProvider
func (c *Client) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       config.Model,
		Messages:    chatMessages,
		MaxTokens:   config.MaxTokens,
		Temperature: float32(config.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

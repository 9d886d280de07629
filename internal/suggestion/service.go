package suggestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/victordov/chatbot-construction-sub001/internal/ai"
	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Request authorization failures
var (
	ErrNotHolder   = errors.New("operator has not taken over this session")
	ErrDisabled    = errors.New("suggestions are disabled for this session")
	ErrAlreadyUsed = errors.New("suggestion already used")
)

const draftSystemPrompt = `You are drafting a reply on behalf of a customer support operator. ` +
	`Write a single concise, polite answer to the visitor's last message, using the conversation for context. ` +
	`Reply with the answer text only.`

// Holder answers whether a socket client currently holds a session
type Holder interface {
	Holds(sessionID, clientID string) bool
}

// Receiver is a socket client that can be addressed directly
type Receiver interface {
	ID() string
	SendMessage(msg *websocket.Message) bool
}

// Config holds drafting parameters
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	ContextSize int
}

// Service drafts operator reply suggestions and tracks their use.
// Drafts go only to the operator who asked for them; the visitor sees
// nothing until a draft is explicitly used.
type Service struct {
	provider      ai.ChatProvider
	suggestions   *sqlite.SuggestionStorage
	conversations *sqlite.ConversationStorage
	chatService   *chat.Service
	coordinator   Holder
	broadcaster   chat.Broadcaster
	config        Config
	logger        *logger.Logger
}

// NewService creates a new suggestion service
func NewService(
	provider ai.ChatProvider,
	suggestions *sqlite.SuggestionStorage,
	conversations *sqlite.ConversationStorage,
	chatService *chat.Service,
	coordinator Holder,
	broadcaster chat.Broadcaster,
	config Config,
	log *logger.Logger,
) *Service {
	return &Service{
		provider:      provider,
		suggestions:   suggestions,
		conversations: conversations,
		chatService:   chatService,
		coordinator:   coordinator,
		broadcaster:   broadcaster,
		config:        config,
		logger:        log.Named("suggestion"),
	}
}

// Request drafts a reply to a user message and delivers it to the
// requesting operator only. The caller must hold the session.
func (s *Service) Request(ctx context.Context, requester Receiver, sessionID, messageID string) error {
	if s.provider == nil {
		return fmt.Errorf("no suggestion provider configured")
	}
	if !s.coordinator.Holds(sessionID, requester.ID()) {
		return ErrNotHolder
	}

	conversation, err := s.conversations.GetConversation(sessionID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("no conversation for session %s", sessionID)
	}
	if !conversation.SuggestionsEnabled {
		return ErrDisabled
	}

	userMessage, err := s.conversations.GetMessage(sessionID, messageID)
	if err != nil {
		return err
	}

	draft, err := s.draft(ctx, sessionID, userMessage.Content)
	if err != nil {
		return fmt.Errorf("failed to draft suggestion: %w", err)
	}

	record := &sqlite.SuggestionRecord{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		UserMessageID: userMessage.ID,
		Content:       draft,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.suggestions.StoreSuggestion(record); err != nil {
		return err
	}

	if !requester.SendMessage(&websocket.Message{
		Type: chat.EventOperatorSuggestion,
		Data: map[string]any{
			"sessionId":     sessionID,
			"userMessageId": userMessage.ID,
			"userMessage":   userMessage.Content,
			"suggestion":    record.Content,
			"suggestionId":  record.ID,
		},
	}) {
		return fmt.Errorf("failed to deliver suggestion to operator")
	}
	return nil
}

// Use consumes a suggestion at most once, sending its text (optionally
// edited) to the visitor as an operator message. Other dashboards are
// told so they can disable the stale draft.
func (s *Service) Use(requester Receiver, sessionID, suggestionID, edited, operatorName string) error {
	if !s.coordinator.Holds(sessionID, requester.ID()) {
		return ErrNotHolder
	}

	record, err := s.suggestions.GetSuggestion(suggestionID)
	if err != nil {
		return err
	}
	if record == nil || record.SessionID != sessionID {
		return fmt.Errorf("suggestion not found: %s", suggestionID)
	}

	if edited == record.Content {
		edited = ""
	}
	if err := s.suggestions.MarkUsed(suggestionID, edited); err != nil {
		return ErrAlreadyUsed
	}

	content := record.Content
	if edited != "" {
		content = edited
	}

	sent, err := s.chatService.AppendOperatorMessage(sessionID, operatorName, content)
	if err != nil {
		return err
	}
	if err := s.suggestions.SetResultMessage(suggestionID, sent.ID); err != nil {
		s.logger.Error("Failed to link suggestion to sent message", logger.Error(err))
	}

	s.broadcaster.BroadcastToOperators(&websocket.Message{
		Type: chat.EventSuggestionUsed,
		Data: map[string]any{
			"suggestionId": suggestionID,
			"operatorName": operatorName,
		},
	})
	return nil
}

// Toggle enables or disables drafting for a conversation and announces
// the change to all dashboards.
func (s *Service) Toggle(sessionID string, enabled bool) error {
	if err := s.conversations.SetSuggestionsEnabled(sessionID, enabled); err != nil {
		return err
	}

	s.broadcaster.BroadcastToOperators(&websocket.Message{
		Type: chat.EventSuggestionsStatusChanged,
		Data: map[string]any{"sessionId": sessionID, "enabled": enabled},
	})
	return nil
}

func (s *Service) draft(ctx context.Context, sessionID, userMessage string) (string, error) {
	messages := []ai.ChatMessage{{Role: ai.RoleSystem, Content: draftSystemPrompt}}

	history, err := s.conversations.GetMessages(sessionID, s.config.ContextSize)
	if err != nil {
		return "", err
	}
	for _, record := range history {
		role := ai.RoleUser
		if record.Sender != sqlite.SenderUser {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: record.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: userMessage})

	return s.provider.ChatCompletion(ctx, messages, ai.ChatConfig{
		Model:       s.config.Model,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	})
}

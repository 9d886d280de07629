package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/victordov/chatbot-construction-sub001/internal/bot"
	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/handoff"
	"github.com/victordov/chatbot-construction-sub001/internal/secure"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/internal/suggestion"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Handler dispatches socket events to the chat, hand-off, suggestion
// and encryption services. It is the server-side counterpart of the
// widget and dashboard socket contracts.
type Handler struct {
	chatService *chat.Service
	coordinator *handoff.Coordinator
	suggestions *suggestion.Service
	responder   *bot.Responder
	encryption  *secure.Service
	server      *websocket.Server
	logger      *logger.Logger

	botEnabled        bool
	encryptionEnabled bool
}

// NewHandler creates the socket event dispatcher
func NewHandler(
	chatService *chat.Service,
	coordinator *handoff.Coordinator,
	suggestions *suggestion.Service,
	responder *bot.Responder,
	encryption *secure.Service,
	server *websocket.Server,
	botEnabled bool,
	encryptionEnabled bool,
	log *logger.Logger,
) *Handler {
	return &Handler{
		chatService:       chatService,
		coordinator:       coordinator,
		suggestions:       suggestions,
		responder:         responder,
		encryption:        encryption,
		server:            server,
		logger:            log.Named("relay"),
		botEnabled:        botEnabled,
		encryptionEnabled: encryptionEnabled,
	}
}

// HandleConnect runs when a client finishes the socket handshake
func (h *Handler) HandleConnect(client *websocket.Client) {
	if client.Role() != websocket.RoleVisitor {
		return
	}

	sessionID := client.SessionID()
	h.coordinator.ChatActivity(sessionID, chat.ActivityOpened)
	if h.encryptionEnabled {
		if err := h.encryption.StartExchange(sessionID, client); err != nil {
			h.logger.Error("Failed to start key exchange", Error(err))
		}
	}

	conversation, err := h.chatService.Conversation(sessionID)
	if err != nil {
		h.logger.Error("Failed to load conversation on connect", Error(err))
		return
	}
	if conversation == nil && h.botEnabled && h.responder.Greeting() != "" {
		client.SendMessage(&websocket.Message{
			Type: chat.EventBotMessage,
			Data: map[string]any{
				"sessionId": sessionID,
				"message":   h.responder.Greeting(),
				"sender":    "bot",
			},
		})
	}
}

// HandleDisconnect runs when a client connection drops
func (h *Handler) HandleDisconnect(client *websocket.Client) {
	if client.Role() == websocket.RoleOperator {
		h.coordinator.Release(client.ID())
		return
	}

	sessionID := client.SessionID()
	if h.server.SessionConnectionCount(sessionID) == 0 {
		h.encryption.Drop(sessionID)
		h.coordinator.ChatActivity(sessionID, chat.ActivityClosed)
	}
}

// HandleMessage dispatches one inbound event
func (h *Handler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	if messageType == chat.EventPing {
		client.SendMessage(&websocket.Message{Type: chat.EventPong, Data: map[string]any{}})
		return nil
	}

	switch client.Role() {
	case websocket.RoleVisitor:
		return h.handleVisitorEvent(client, messageType, data)
	case websocket.RoleOperator:
		return h.handleOperatorEvent(client, messageType, data)
	}
	return fmt.Errorf("unknown client role: %s", client.Role())
}

func (h *Handler) handleVisitorEvent(client *websocket.Client, messageType string, data map[string]any) error {
	sessionID := client.SessionID()

	switch messageType {
	case chat.EventChatMessage:
		var p chat.ChatMessagePayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		return h.visitorMessage(sessionID, &p)

	case chat.EventUserTyping:
		var p chat.TypingPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		h.chatService.RelayTyping(sessionID, p.IsTyping, false)
		return nil

	case chat.EventChatActivity:
		var p chat.ActivityPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		p.SessionID = sessionID
		if err := p.Validate(); err != nil {
			return err
		}
		h.coordinator.ChatActivity(sessionID, p.Type)
		return nil

	case chat.EventEncryptionPublicKey:
		var p chat.PublicKeyPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if p.PublicKey == "" {
			return fmt.Errorf("publicKey is required")
		}
		return h.encryption.HandleClientKey(sessionID, p.PublicKey, client)
	}

	return fmt.Errorf("unsupported visitor event: %s", messageType)
}

func (h *Handler) visitorMessage(sessionID string, p *chat.ChatMessagePayload) error {
	content := p.Message
	if p.Encrypted {
		plaintext, err := h.encryption.Open(sessionID, p.Nonce, p.Message)
		if err != nil {
			return fmt.Errorf("failed to open encrypted message: %w", err)
		}
		content = plaintext
	} else if h.encryptionEnabled && !h.encryption.Ready(sessionID) {
		h.encryption.Downgrade(sessionID, "plaintext message before key exchange completed")
	}

	_, err := h.AcceptVisitorMessage(sessionID, content)
	return err
}

// AcceptVisitorMessage stores a visitor message and, when no operator
// holds the session, schedules an automated reply. The HTTP message
// endpoint shares this path with the socket dispatcher.
func (h *Handler) AcceptVisitorMessage(sessionID, content string) (*sqlite.MessageRecord, error) {
	record, err := h.chatService.AppendVisitorMessage(sessionID, content)
	if err != nil {
		return nil, err
	}

	if _, claimed := h.coordinator.Holder(sessionID); !claimed && h.botEnabled {
		go h.autoReply(sessionID, record.ID, content)
	}
	return record, nil
}

func (h *Handler) autoReply(sessionID, latestID, latest string) {
	history, err := h.chatService.History(sessionID)
	if err != nil {
		h.logger.Error("Failed to load history for auto reply", Error(err))
		history = nil
	}
	if n := len(history); n > 0 && history[n-1].ID == latestID {
		history = history[:n-1]
	}

	// The claim may have arrived while the reply was being drafted
	reply := h.responder.Respond(context.Background(), history, latest)
	if _, claimed := h.coordinator.Holder(sessionID); claimed {
		return
	}
	if reply == "" {
		return
	}
	if _, err := h.chatService.AppendBotMessage(sessionID, reply); err != nil {
		h.logger.Error("Failed to store bot reply", Error(err))
	}
}

func (h *Handler) handleOperatorEvent(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case chat.EventOperatorTakeover:
		var p chat.TakeoverPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if err := h.coordinator.Takeover(p.SessionID, p.OperatorName, client.ID()); err != nil {
			if errors.Is(err, handoff.ErrAlreadyClaimed) {
				client.SendMessage(&websocket.Message{
					Type: chat.EventTakeoverRejected,
					Data: map[string]any{"sessionId": p.SessionID, "operatorName": p.OperatorName},
				})
				return nil
			}
			return err
		}
		return nil

	case chat.EventEndChat:
		var p chat.SessionPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		return h.coordinator.EndChat(p.SessionID)

	case chat.EventOperatorMessage:
		var p chat.OperatorMessagePayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if !h.coordinator.Holds(p.SessionID, client.ID()) {
			return fmt.Errorf("operator message for unclaimed session %s", p.SessionID)
		}
		operatorName, _ := h.coordinator.Holder(p.SessionID)
		_, err := h.chatService.AppendOperatorMessage(p.SessionID, operatorName, p.Message)
		return err

	case chat.EventOperatorTyping:
		var p chat.TypingPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		h.chatService.RelayTyping(p.SessionID, p.IsTyping, true)
		return nil

	case chat.EventRequestSuggestions:
		var p chat.RequestSuggestionsPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		return h.suggestions.Request(context.Background(), client, p.SessionID, p.MessageID)

	case chat.EventUseSuggestion:
		var p chat.UseSuggestionPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		operatorName, _ := h.coordinator.Holder(p.SessionID)
		return h.suggestions.Use(client, p.SessionID, p.SuggestionID, p.Edited, operatorName)

	case chat.EventToggleSuggestions:
		var p chat.ToggleSuggestionsPayload
		if err := chat.DecodePayload(data, &p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		return h.suggestions.Toggle(p.SessionID, p.Enabled)
	}

	return fmt.Errorf("unsupported operator event: %s", messageType)
}

// Field helpers from the logger package
var (
	String = logger.String
	Error  = logger.Error
)

package chat

import (
	"encoding/json"
	"fmt"
)

// Wire event types. These names are part of the widget and dashboard
// protocol and must not change.
const (
	// Visitor events
	EventChatMessage         = "chat-message"
	EventUserTyping          = "user-typing"
	EventEncryptionPublicKey = "encryption-public-key"

	// Operator events
	EventOperatorTakeover   = "operator-takeover"
	EventEndChat            = "end-chat"
	EventOperatorMessage    = "operator-message"
	EventOperatorTyping     = "operator-typing"
	EventRequestSuggestions = "request-suggestions"
	EventUseSuggestion      = "use-suggestion"
	EventToggleSuggestions  = "toggle-suggestions"

	// Server events to operator dashboards
	EventNewChat                  = "new-chat"
	EventChatReactivated          = "chat-reactivated"
	EventChatActivity             = "chat-activity"
	EventChatEnded                = "chat-ended"
	EventOperatorJoined           = "operator-joined"
	EventTakeoverRejected         = "takeover-rejected"
	EventOperatorSuggestion       = "operator-suggestion"
	EventSuggestionUsed           = "suggestion-used"
	EventSuggestionsStatusChanged = "suggestions-status-changed"

	// Server events to the visitor widget
	EventNewMessage           = "new-message"
	EventBotMessage           = "bot-message"
	EventTypingIndicator      = "typing-indicator"
	EventFileUploaded         = "file-uploaded"
	EventOperatorLeft         = "operator-left"
	EventEncryptionInit       = "encryption-init"
	EventEncryptionReady      = "encryption-ready"
	EventEncryptionDowngraded = "encryption-downgraded"

	// Liveness probe
	EventPing = "ping"
	EventPong = "pong"
)

// Chat activity types carried by chat-activity events
const (
	ActivityOpened = "opened"
	ActivityClosed = "closed"
)

// ChatMessagePayload is a visitor message sent over the socket
type ChatMessagePayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Encrypted bool   `json:"encrypted,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
}

// TakeoverPayload claims a conversation for an operator
type TakeoverPayload struct {
	SessionID    string `json:"sessionId"`
	OperatorName string `json:"operatorName"`
}

// SessionPayload carries only a session reference
type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

// OperatorMessagePayload is an operator reply to a visitor
type OperatorMessagePayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// TypingPayload is an advisory typing state change
type TypingPayload struct {
	SessionID string `json:"sessionId"`
	IsTyping  bool   `json:"isTyping"`
}

// ActivityPayload signals a widget being opened or closed
type ActivityPayload struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
}

// RequestSuggestionsPayload asks for a drafted reply to a user message
type RequestSuggestionsPayload struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
}

// UseSuggestionPayload consumes a drafted reply, optionally edited
type UseSuggestionPayload struct {
	SessionID    string `json:"sessionId"`
	SuggestionID string `json:"suggestionId"`
	Edited       string `json:"edited,omitempty"`
}

// ToggleSuggestionsPayload enables or disables drafting per conversation
type ToggleSuggestionsPayload struct {
	SessionID string `json:"sessionId"`
	Enabled   bool   `json:"enabled"`
}

// PublicKeyPayload carries the visitor's ephemeral public key
type PublicKeyPayload struct {
	SessionID string `json:"sessionId"`
	PublicKey string `json:"publicKey"`
}

// DecodePayload converts a raw event payload into a typed struct
func DecodePayload(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// Validate checks required fields
func (p *ChatMessagePayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// Validate checks required fields
func (p *TakeoverPayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if p.OperatorName == "" {
		return fmt.Errorf("operatorName is required")
	}
	return nil
}

// Validate checks required fields
func (p *SessionPayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	return nil
}

// Validate checks required fields
func (p *OperatorMessagePayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// Validate checks required fields
func (p *TypingPayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	return nil
}

// Validate checks required fields
func (p *ActivityPayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if p.Type != ActivityOpened && p.Type != ActivityClosed {
		return fmt.Errorf("type must be %q or %q", ActivityOpened, ActivityClosed)
	}
	return nil
}

// Validate checks required fields
func (p *RequestSuggestionsPayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if p.MessageID == "" {
		return fmt.Errorf("messageId is required")
	}
	return nil
}

// Validate checks required fields
func (p *UseSuggestionPayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if p.SuggestionID == "" {
		return fmt.Errorf("suggestionId is required")
	}
	return nil
}

// Validate checks required fields
func (p *ToggleSuggestionsPayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	return nil
}

// Validate checks required fields
func (p *PublicKeyPayload) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if p.PublicKey == "" {
		return fmt.Errorf("publicKey is required")
	}
	return nil
}

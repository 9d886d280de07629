package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Broadcaster delivers events to connected clients
type Broadcaster interface {
	SendToSession(sessionID string, msg *websocket.Message)
	BroadcastToOperators(msg *websocket.Message)
}

// Service owns conversation persistence and event fan-out. Every stored
// message is mirrored to the visitor session and to the operator
// dashboards over the socket layer.
type Service struct {
	conversations *sqlite.ConversationStorage
	broadcaster   Broadcaster
	logger        *logger.Logger
	historyLimit  int
}

// NewService creates a new chat service
func NewService(conversations *sqlite.ConversationStorage, broadcaster Broadcaster, log *logger.Logger, historyLimit int) *Service {
	return &Service{
		conversations: conversations,
		broadcaster:   broadcaster,
		logger:        log.Named("chat"),
		historyLimit:  historyLimit,
	}
}

// AppendVisitorMessage stores a visitor message and fans it out. The
// first message of a session creates the conversation and announces
// new-chat; a message into an ended conversation reactivates it and
// announces chat-reactivated.
func (s *Service) AppendVisitorMessage(sessionID, content string) (*sqlite.MessageRecord, error) {
	created, err := s.conversations.EnsureConversation(sessionID)
	if err != nil {
		return nil, err
	}

	reactivated := false
	if !created {
		reactivated, err = s.conversations.ReactivateConversation(sessionID)
		if err != nil {
			return nil, err
		}
	}

	record := &sqlite.MessageRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sqlite.SenderUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.conversations.StoreMessage(record); err != nil {
		return nil, err
	}

	if created {
		s.broadcaster.BroadcastToOperators(&websocket.Message{
			Type: EventNewChat,
			Data: map[string]any{"sessionId": sessionID},
		})
	} else if reactivated {
		s.broadcaster.BroadcastToOperators(&websocket.Message{
			Type: EventChatReactivated,
			Data: map[string]any{"sessionId": sessionID},
		})
	}

	s.fanOut(record)
	return record, nil
}

// AppendOperatorMessage stores an operator reply and fans it out
func (s *Service) AppendOperatorMessage(sessionID, operatorName, content string) (*sqlite.MessageRecord, error) {
	conversation, err := s.conversations.GetConversation(sessionID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, fmt.Errorf("no conversation for session %s", sessionID)
	}

	record := &sqlite.MessageRecord{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Sender:       sqlite.SenderOperator,
		Content:      content,
		OperatorName: operatorName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.conversations.StoreMessage(record); err != nil {
		return nil, err
	}

	s.fanOut(record)
	return record, nil
}

// AppendBotMessage stores an automated reply. The visitor widget gets a
// bot-message event, dashboards a regular new-message.
func (s *Service) AppendBotMessage(sessionID, content string) (*sqlite.MessageRecord, error) {
	record := &sqlite.MessageRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sqlite.SenderBot,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.conversations.StoreMessage(record); err != nil {
		return nil, err
	}

	s.broadcaster.SendToSession(sessionID, &websocket.Message{
		Type: EventBotMessage,
		Data: MessageEventData(record),
	})
	s.broadcaster.BroadcastToOperators(&websocket.Message{
		Type: EventNewMessage,
		Data: MessageEventData(record),
	})
	return record, nil
}

// AppendAttachmentMessage records an uploaded file and announces it with
// a file-uploaded event on the visitor session.
func (s *Service) AppendAttachmentMessage(sessionID, attachmentID, filename string) (*sqlite.MessageRecord, error) {
	if _, err := s.conversations.EnsureConversation(sessionID); err != nil {
		return nil, err
	}

	record := &sqlite.MessageRecord{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Sender:       sqlite.SenderUser,
		Content:      filename,
		AttachmentID: attachmentID,
		Filename:     filename,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.conversations.StoreMessage(record); err != nil {
		return nil, err
	}

	s.broadcaster.SendToSession(sessionID, &websocket.Message{
		Type: EventFileUploaded,
		Data: MessageEventData(record),
	})
	s.broadcaster.BroadcastToOperators(&websocket.Message{
		Type: EventNewMessage,
		Data: MessageEventData(record),
	})
	return record, nil
}

// History returns the message history for a session, bounded by the
// configured limit.
func (s *Service) History(sessionID string) ([]*sqlite.MessageRecord, error) {
	return s.conversations.GetMessages(sessionID, s.historyLimit)
}

// Message returns a single message by ID within a session
func (s *Service) Message(sessionID, messageID string) (*sqlite.MessageRecord, error) {
	return s.conversations.GetMessage(sessionID, messageID)
}

// Conversation returns the conversation record for a session
func (s *Service) Conversation(sessionID string) (*sqlite.ConversationRecord, error) {
	return s.conversations.GetConversation(sessionID)
}

// RelayTyping forwards an advisory typing state change to the
// counterpart party. No persistence, last write wins.
func (s *Service) RelayTyping(sessionID string, isTyping bool, fromOperator bool) {
	if fromOperator {
		s.broadcaster.SendToSession(sessionID, &websocket.Message{
			Type: EventTypingIndicator,
			Data: map[string]any{"sessionId": sessionID, "isTyping": isTyping},
		})
		return
	}
	s.broadcaster.BroadcastToOperators(&websocket.Message{
		Type: EventUserTyping,
		Data: map[string]any{"sessionId": sessionID, "isTyping": isTyping},
	})
}

func (s *Service) fanOut(record *sqlite.MessageRecord) {
	msg := &websocket.Message{
		Type: EventNewMessage,
		Data: MessageEventData(record),
	}
	s.broadcaster.SendToSession(record.SessionID, msg)
	s.broadcaster.BroadcastToOperators(msg)
}

// MessageEventData builds the wire payload for a stored message
func MessageEventData(record *sqlite.MessageRecord) map[string]any {
	data := map[string]any{
		"sessionId": record.SessionID,
		"messageId": record.ID,
		"message":   record.Content,
		"sender":    record.Sender,
		"timestamp": record.CreatedAt.Format(time.RFC3339),
	}
	if record.OperatorName != "" {
		data["operatorName"] = record.OperatorName
	}
	if record.AttachmentID != "" {
		data["attachmentId"] = record.AttachmentID
		data["filename"] = record.Filename
	}
	return data
}

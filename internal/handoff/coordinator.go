package handoff

import (
	"errors"
	"sync"
	"time"

	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// ErrAlreadyClaimed is returned when a second operator tries to take
// over a session that another operator holds.
var ErrAlreadyClaimed = errors.New("session already claimed by another operator")

type claim struct {
	operatorName string
	clientID     string
}

// Coordinator tracks which operator holds each conversation and owns
// the disconnect grace timers. Claims are exclusive: a takeover on a
// held session fails unless it comes from the holding client.
type Coordinator struct {
	mu          sync.Mutex
	claims      map[string]claim
	graceTimers map[string]*time.Timer

	grace         time.Duration
	conversations *sqlite.ConversationStorage
	broadcaster   chat.Broadcaster
	logger        *logger.Logger
}

// NewCoordinator creates a new hand-off coordinator
func NewCoordinator(conversations *sqlite.ConversationStorage, broadcaster chat.Broadcaster, grace time.Duration, log *logger.Logger) *Coordinator {
	return &Coordinator{
		claims:        make(map[string]claim),
		graceTimers:   make(map[string]*time.Timer),
		grace:         grace,
		conversations: conversations,
		broadcaster:   broadcaster,
		logger:        log.Named("handoff"),
	}
}

// Takeover claims a session for an operator. The claim suppresses
// automated replies until the chat ends. A repeated takeover from the
// holding client updates the display name; anyone else is rejected.
func (c *Coordinator) Takeover(sessionID, operatorName, clientID string) error {
	c.mu.Lock()
	existing, held := c.claims[sessionID]
	if held && existing.clientID != clientID {
		c.mu.Unlock()
		return ErrAlreadyClaimed
	}
	c.claims[sessionID] = claim{operatorName: operatorName, clientID: clientID}
	c.mu.Unlock()

	c.logger.Info("Operator took over session",
		String("session_id", sessionID),
		String("operator", operatorName))

	joined := &websocket.Message{
		Type: chat.EventOperatorJoined,
		Data: map[string]any{"sessionId": sessionID, "operatorName": operatorName},
	}
	c.broadcaster.BroadcastToOperators(joined)
	c.broadcaster.SendToSession(sessionID, joined)
	return nil
}

// EndChat closes a conversation: the claim is dropped, any grace timer
// cancelled, and both parties are notified.
func (c *Coordinator) EndChat(sessionID string) error {
	c.mu.Lock()
	delete(c.claims, sessionID)
	if timer, ok := c.graceTimers[sessionID]; ok {
		timer.Stop()
		delete(c.graceTimers, sessionID)
	}
	c.mu.Unlock()

	if err := c.conversations.EndConversation(sessionID); err != nil {
		return err
	}

	c.logger.Info("Chat ended", String("session_id", sessionID))

	c.broadcaster.BroadcastToOperators(&websocket.Message{
		Type: chat.EventChatEnded,
		Data: map[string]any{"sessionId": sessionID},
	})
	c.broadcaster.SendToSession(sessionID, &websocket.Message{
		Type: chat.EventOperatorLeft,
		Data: map[string]any{"sessionId": sessionID},
	})
	c.broadcaster.SendToSession(sessionID, &websocket.Message{
		Type: chat.EventChatEnded,
		Data: map[string]any{"sessionId": sessionID},
	})
	return nil
}

// Release drops every claim held by a disconnecting operator client.
// The affected sessions fall back to automated replies.
func (c *Coordinator) Release(clientID string) {
	c.mu.Lock()
	var released []string
	for sessionID, cl := range c.claims {
		if cl.clientID == clientID {
			released = append(released, sessionID)
			delete(c.claims, sessionID)
		}
	}
	c.mu.Unlock()

	for _, sessionID := range released {
		c.logger.Info("Operator claim released", String("session_id", sessionID))
		c.broadcaster.SendToSession(sessionID, &websocket.Message{
			Type: chat.EventOperatorLeft,
			Data: map[string]any{"sessionId": sessionID},
		})
		c.broadcaster.BroadcastToOperators(&websocket.Message{
			Type: chat.EventOperatorLeft,
			Data: map[string]any{"sessionId": sessionID},
		})
	}
}

// Holder returns the operator name holding a session, if any
func (c *Coordinator) Holder(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.claims[sessionID]
	return cl.operatorName, ok
}

// Holds reports whether the given client holds the session
func (c *Coordinator) Holds(sessionID, clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.claims[sessionID]
	return ok && cl.clientID == clientID
}

// ChatActivity handles widget open and close notifications. A close
// starts the grace timer; if the widget does not reopen before it
// fires, the conversation is ended. The activity is mirrored to the
// dashboards either way.
func (c *Coordinator) ChatActivity(sessionID, activityType string) {
	c.mu.Lock()
	switch activityType {
	case chat.ActivityClosed:
		if timer, ok := c.graceTimers[sessionID]; ok {
			timer.Stop()
		}
		c.graceTimers[sessionID] = time.AfterFunc(c.grace, func() {
			c.expireGrace(sessionID)
		})
	case chat.ActivityOpened:
		if timer, ok := c.graceTimers[sessionID]; ok {
			timer.Stop()
			delete(c.graceTimers, sessionID)
		}
	}
	c.mu.Unlock()

	c.broadcaster.BroadcastToOperators(&websocket.Message{
		Type: chat.EventChatActivity,
		Data: map[string]any{"sessionId": sessionID, "type": activityType},
	})
}

func (c *Coordinator) expireGrace(sessionID string) {
	c.mu.Lock()
	if _, ok := c.graceTimers[sessionID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.graceTimers, sessionID)
	c.mu.Unlock()

	c.logger.Info("Disconnect grace period expired", String("session_id", sessionID))
	if err := c.EndChat(sessionID); err != nil {
		c.logger.Error("Failed to end chat after grace period", Error(err))
	}
}

// Stop cancels all pending grace timers
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sessionID, timer := range c.graceTimers {
		timer.Stop()
		delete(c.graceTimers, sessionID)
	}
}

// Field helpers from the logger package
var (
	String = logger.String
	Error  = logger.Error
)

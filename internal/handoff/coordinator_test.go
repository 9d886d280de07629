package handoff

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	session  []*websocket.Message
	operator []*websocket.Message
}

func (f *fakeBroadcaster) SendToSession(sessionID string, msg *websocket.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = append(f.session, msg)
}

func (f *fakeBroadcaster) BroadcastToOperators(msg *websocket.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operator = append(f.operator, msg)
}

func (f *fakeBroadcaster) operatorEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, msg := range f.operator {
		types = append(types, msg.Type)
	}
	return types
}

func newTestCoordinator(t *testing.T, grace time.Duration) (*Coordinator, *fakeBroadcaster, *sqlite.ConversationStorage) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	conversations := sqlite.NewConversationStorage(db, logger.NewNop())
	broadcaster := &fakeBroadcaster{}
	coordinator := NewCoordinator(conversations, broadcaster, grace, logger.NewNop())
	t.Cleanup(coordinator.Stop)
	return coordinator, broadcaster, conversations
}

func TestTakeoverExclusive(t *testing.T) {
	coordinator, broadcaster, _ := newTestCoordinator(t, time.Minute)

	if err := coordinator.Takeover("session-1", "Alice", "client-a"); err != nil {
		t.Fatalf("first takeover failed: %v", err)
	}

	err := coordinator.Takeover("session-1", "Bob", "client-b")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	name, held := coordinator.Holder("session-1")
	if !held || name != "Alice" {
		t.Errorf("expected Alice to hold the session, got %q held=%v", name, held)
	}

	// The holding client may repeat the takeover
	if err := coordinator.Takeover("session-1", "Alice", "client-a"); err != nil {
		t.Errorf("repeated takeover by holder failed: %v", err)
	}

	events := broadcaster.operatorEvents()
	if len(events) == 0 || events[0] != chat.EventOperatorJoined {
		t.Errorf("expected operator-joined broadcast, got %v", events)
	}

	// The widget is told about the hand-off too
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if len(broadcaster.session) == 0 {
		t.Fatal("expected operator-joined sent to the visitor session")
	}
	joined := broadcaster.session[0]
	if joined.Type != chat.EventOperatorJoined {
		t.Fatalf("expected operator-joined to the session, got %q", joined.Type)
	}
	if joined.Data["operatorName"] != "Alice" || joined.Data["sessionId"] != "session-1" {
		t.Errorf("unexpected operator-joined payload: %v", joined.Data)
	}
}

func TestEndChatClearsClaim(t *testing.T) {
	coordinator, broadcaster, conversations := newTestCoordinator(t, time.Minute)

	if _, err := conversations.EnsureConversation("session-1"); err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}
	if err := coordinator.Takeover("session-1", "Alice", "client-a"); err != nil {
		t.Fatalf("takeover failed: %v", err)
	}

	if err := coordinator.EndChat("session-1"); err != nil {
		t.Fatalf("EndChat failed: %v", err)
	}

	if _, held := coordinator.Holder("session-1"); held {
		t.Error("expected claim to be cleared after end-chat")
	}

	record, _ := conversations.GetConversation("session-1")
	if record.Status != sqlite.ConversationEnded {
		t.Errorf("expected conversation ended, got %q", record.Status)
	}

	found := false
	for _, eventType := range broadcaster.operatorEvents() {
		if eventType == chat.EventChatEnded {
			found = true
		}
	}
	if !found {
		t.Error("expected chat-ended broadcast to operators")
	}
}

func TestReleaseDropsClaims(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, time.Minute)

	if err := coordinator.Takeover("session-1", "Alice", "client-a"); err != nil {
		t.Fatalf("takeover failed: %v", err)
	}
	if err := coordinator.Takeover("session-2", "Alice", "client-a"); err != nil {
		t.Fatalf("takeover failed: %v", err)
	}

	coordinator.Release("client-a")

	if _, held := coordinator.Holder("session-1"); held {
		t.Error("expected session-1 to be unclaimed after release")
	}
	if _, held := coordinator.Holder("session-2"); held {
		t.Error("expected session-2 to be unclaimed after release")
	}
}

func TestGraceTimerEndsChat(t *testing.T) {
	coordinator, _, conversations := newTestCoordinator(t, 50*time.Millisecond)

	if _, err := conversations.EnsureConversation("session-1"); err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}

	coordinator.ChatActivity("session-1", chat.ActivityClosed)

	deadline := time.Now().Add(2 * time.Second)
	for {
		record, _ := conversations.GetConversation("session-1")
		if record.Status == sqlite.ConversationEnded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("conversation was not ended after the grace period")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGraceTimerCancelledByReopen(t *testing.T) {
	coordinator, _, conversations := newTestCoordinator(t, 50*time.Millisecond)

	if _, err := conversations.EnsureConversation("session-1"); err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}

	coordinator.ChatActivity("session-1", chat.ActivityClosed)
	coordinator.ChatActivity("session-1", chat.ActivityOpened)

	time.Sleep(150 * time.Millisecond)

	record, _ := conversations.GetConversation("session-1")
	if record.Status != sqlite.ConversationActive {
		t.Errorf("expected conversation to stay active after reopen, got %q", record.Status)
	}
}

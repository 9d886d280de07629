package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/victordov/chatbot-construction-sub001/internal/ai"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

type fakeProvider struct {
	reply    string
	err      error
	messages []ai.ChatMessage
}

func (p *fakeProvider) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	p.messages = messages
	return p.reply, p.err
}

func TestRespondWithoutProviderReturnsFallback(t *testing.T) {
	responder := NewResponder(nil, Config{Fallback: "An agent will be with you shortly.", Timeout: time.Second}, logger.NewNop())

	reply := responder.Respond(context.Background(), nil, "hello")
	if reply != "An agent will be with you shortly." {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestRespondFallsBackOnProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limited")}
	responder := NewResponder(provider, Config{Fallback: "fallback text", Timeout: time.Second}, logger.NewNop())

	reply := responder.Respond(context.Background(), nil, "hello")
	if reply != "fallback text" {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestRespondBuildsPromptFromHistory(t *testing.T) {
	provider := &fakeProvider{reply: "Sure, the office opens at 9."}
	responder := NewResponder(provider, Config{Timeout: time.Second, ContextSize: 10}, logger.NewNop())

	history := []*sqlite.MessageRecord{
		{Sender: sqlite.SenderUser, Content: "hi"},
		{Sender: sqlite.SenderBot, Content: "hello, how can I help?"},
	}
	reply := responder.Respond(context.Background(), history, "when do you open?")
	if reply != "Sure, the office opens at 9." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	// system prompt + 2 history turns + latest message
	if len(provider.messages) != 4 {
		t.Fatalf("expected 4 prompt messages, got %d", len(provider.messages))
	}
	if provider.messages[0].Role != ai.RoleSystem {
		t.Errorf("expected system message first, got %q", provider.messages[0].Role)
	}
	if provider.messages[2].Role != ai.RoleAssistant {
		t.Errorf("expected bot turn mapped to assistant, got %q", provider.messages[2].Role)
	}
	if provider.messages[3].Content != "when do you open?" {
		t.Errorf("expected latest message last, got %q", provider.messages[3].Content)
	}
}

func TestRespondTrimsHistoryToContextSize(t *testing.T) {
	provider := &fakeProvider{reply: "ok"}
	responder := NewResponder(provider, Config{Timeout: time.Second, ContextSize: 2}, logger.NewNop())

	history := []*sqlite.MessageRecord{
		{Sender: sqlite.SenderUser, Content: "one"},
		{Sender: sqlite.SenderBot, Content: "two"},
		{Sender: sqlite.SenderUser, Content: "three"},
	}
	responder.Respond(context.Background(), history, "latest")

	// system + 2 most recent history turns + latest
	if len(provider.messages) != 4 {
		t.Fatalf("expected 4 prompt messages, got %d", len(provider.messages))
	}
	if provider.messages[1].Content != "two" {
		t.Errorf("expected oldest kept turn to be 'two', got %q", provider.messages[1].Content)
	}
}

func TestPromptFileOverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("You answer only in haiku.\n"), 0644); err != nil {
		t.Fatalf("failed to write prompt file: %v", err)
	}

	responder := NewResponder(&fakeProvider{}, Config{PromptPath: path, Timeout: time.Second}, logger.NewNop())
	if responder.systemPrompt != "You answer only in haiku." {
		t.Errorf("unexpected system prompt: %q", responder.systemPrompt)
	}

	// A missing file keeps the default prompt
	responder = NewResponder(&fakeProvider{}, Config{PromptPath: filepath.Join(t.TempDir(), "missing.txt"), Timeout: time.Second}, logger.NewNop())
	if responder.systemPrompt != defaultSystemPrompt {
		t.Errorf("expected default prompt, got %q", responder.systemPrompt)
	}
}

package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

func newSuggestionStorage(t *testing.T) *SuggestionStorage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSuggestionStorage(db, logger.NewNop())
}

func TestMarkUsedAtMostOnce(t *testing.T) {
	storage := newSuggestionStorage(t)

	record := &SuggestionRecord{
		ID:            "sug-1",
		SessionID:     "session-1",
		UserMessageID: "msg-1",
		Content:       "Try asking about unit 4B.",
		CreatedAt:     time.Now().UTC(),
	}
	if err := storage.StoreSuggestion(record); err != nil {
		t.Fatalf("StoreSuggestion failed: %v", err)
	}

	if err := storage.MarkUsed("sug-1", ""); err != nil {
		t.Fatalf("first MarkUsed failed: %v", err)
	}

	if err := storage.MarkUsed("sug-1", ""); err == nil {
		t.Error("expected second MarkUsed to fail")
	}

	stored, err := storage.GetSuggestion("sug-1")
	if err != nil {
		t.Fatalf("GetSuggestion failed: %v", err)
	}
	if !stored.Used {
		t.Error("expected suggestion to be marked used")
	}
	if stored.UserMessageID != "msg-1" {
		t.Errorf("expected triggering message reference, got %q", stored.UserMessageID)
	}
}

func TestMarkUsedKeepsEditedTextAndResultMessage(t *testing.T) {
	storage := newSuggestionStorage(t)

	record := &SuggestionRecord{
		ID:            "sug-1",
		SessionID:     "session-1",
		UserMessageID: "msg-1",
		Content:       "The rent is 1200.",
		CreatedAt:     time.Now().UTC(),
	}
	if err := storage.StoreSuggestion(record); err != nil {
		t.Fatalf("StoreSuggestion failed: %v", err)
	}

	if err := storage.MarkUsed("sug-1", "The rent on unit 4B is 1200 per month."); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}
	if err := storage.SetResultMessage("sug-1", "msg-9"); err != nil {
		t.Fatalf("SetResultMessage failed: %v", err)
	}

	stored, err := storage.GetSuggestion("sug-1")
	if err != nil {
		t.Fatalf("GetSuggestion failed: %v", err)
	}
	if stored.Edited != "The rent on unit 4B is 1200 per month." {
		t.Errorf("unexpected edited text: %q", stored.Edited)
	}
	if stored.MessageID != "msg-9" {
		t.Errorf("unexpected result message reference: %q", stored.MessageID)
	}
	if stored.Content != "The rent is 1200." {
		t.Errorf("expected the original draft preserved, got %q", stored.Content)
	}
}

func TestMarkUsedUnknown(t *testing.T) {
	storage := newSuggestionStorage(t)

	if err := storage.MarkUsed("missing", ""); err == nil {
		t.Error("expected error for unknown suggestion")
	}
}

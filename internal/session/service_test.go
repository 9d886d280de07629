package session

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	log := logger.NewNop()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(sqlite.NewSessionStorage(db, log), log)
}

func TestGetOrCreateMintsSession(t *testing.T) {
	service := newTestService(t)

	record, created, err := service.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected a new session")
	}
	if _, err := uuid.Parse(record.ID); err != nil {
		t.Errorf("expected a UUID session ID, got %q", record.ID)
	}

	// The same ID comes back without re-creating
	again, created, err := service.GetOrCreate(record.ID)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected the existing session back")
	}
	if again.ID != record.ID {
		t.Errorf("expected ID %q, got %q", record.ID, again.ID)
	}
}

func TestGetOrCreateUnknownIDMintsFresh(t *testing.T) {
	service := newTestService(t)

	record, created, err := service.GetOrCreate("stale-id-from-local-storage")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected a new session for an unknown ID")
	}
	if record.ID == "stale-id-from-local-storage" {
		t.Error("expected a fresh ID, not the stale one")
	}
}

func TestUpdateMetadata(t *testing.T) {
	service := newTestService(t)

	record, _, err := service.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if err := service.UpdateMetadata(record.ID, "Sam", "sam@example.com", "+123456"); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}

	updated, err := service.Get(record.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.Name != "Sam" || updated.Email != "sam@example.com" || updated.Phone != "+123456" {
		t.Errorf("unexpected metadata: %+v", updated)
	}

	if err := service.UpdateMetadata("missing-session", "x", "", ""); err == nil {
		t.Error("expected an error for an unknown session")
	}
}

func TestGetMissingSession(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Get("nope"); err == nil {
		t.Error("expected an error for a missing session")
	}
}

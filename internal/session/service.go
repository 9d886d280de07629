package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Service issues visitor session IDs and keeps their contact metadata.
// Session IDs are opaque UUIDs held by the widget in local storage.
type Service struct {
	sessions *sqlite.SessionStorage
	logger   *logger.Logger
}

// NewService creates a new session service
func NewService(sessions *sqlite.SessionStorage, log *logger.Logger) *Service {
	return &Service{
		sessions: sessions,
		logger:   log.Named("session"),
	}
}

// GetOrCreate returns the session for the given ID, minting a new one
// when the ID is empty or unknown. The second return reports whether a
// new session was created.
func (s *Service) GetOrCreate(sessionID string) (*sqlite.SessionRecord, bool, error) {
	if sessionID != "" {
		record, err := s.sessions.GetSession(sessionID)
		if err != nil {
			return nil, false, err
		}
		if record != nil {
			return record, false, nil
		}
	}

	record := &sqlite.SessionRecord{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.StoreSession(record); err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Get returns a session by ID, or an error if it does not exist
func (s *Service) Get(sessionID string) (*sqlite.SessionRecord, error) {
	record, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return record, nil
}

// UpdateMetadata stores the visitor's contact details
func (s *Service) UpdateMetadata(sessionID, name, email, phone string) error {
	return s.sessions.UpdateMetadata(sessionID, name, email, phone)
}

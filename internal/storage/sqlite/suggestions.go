package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// SuggestionRecord is a drafted operator reply awaiting review. Once
// used it keeps the edited text the operator actually sent and a
// reference to the resulting message; records are never deleted.
type SuggestionRecord struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	UserMessageID string    `json:"userMessageId"`
	Content       string    `json:"content"`
	Used          bool      `json:"used"`
	Edited        string    `json:"edited,omitempty"`
	MessageID     string    `json:"messageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SuggestionStorage handles storage of drafted suggestions
type SuggestionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSuggestionStorage creates a new SQLite suggestion storage
func NewSuggestionStorage(db *sql.DB, logger *logger.Logger) *SuggestionStorage {
	storage := &SuggestionStorage{
		db:     db,
		logger: logger.Named("sqlite-suggestions"),
	}

	if err := storage.initDB(); err != nil {
		logger.Error("Failed to initialize suggestion storage", Error(err))
	}

	return storage
}

func (s *SuggestionStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS suggestions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_message_id TEXT NOT NULL,
			content TEXT NOT NULL,
			used BOOLEAN NOT NULL DEFAULT 0,
			edited TEXT,
			message_id TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create suggestions table: %w", err)
	}
	return nil
}

// StoreSuggestion saves a freshly drafted suggestion
func (s *SuggestionStorage) StoreSuggestion(record *SuggestionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO suggestions (id, session_id, user_message_id, content, used, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		record.ID, record.SessionID, record.UserMessageID, record.Content,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return nil
}

// GetSuggestion returns a suggestion by ID, or nil if absent
func (s *SuggestionStorage) GetSuggestion(id string) (*SuggestionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, user_message_id, content, used, edited, message_id, created_at
		FROM suggestions WHERE id = ?`, id)

	var record SuggestionRecord
	var createdAt string
	var edited, messageID sql.NullString
	if err := row.Scan(&record.ID, &record.SessionID, &record.UserMessageID,
		&record.Content, &record.Used, &edited, &messageID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query suggestion: %w", err)
	}
	record.Edited = edited.String
	record.MessageID = messageID.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}
	return &record, nil
}

// MarkUsed consumes a suggestion, recording the text the operator
// actually sent when it differs from the draft. The guard on used makes
// consumption at most once: a second call for the same ID returns an
// error.
func (s *SuggestionStorage) MarkUsed(id, edited string) error {
	result, err := s.db.Exec(
		`UPDATE suggestions SET used = 1, edited = ? WHERE id = ? AND used = 0`, edited, id)
	if err != nil {
		return fmt.Errorf("failed to mark suggestion used: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("suggestion %s already used or not found", id)
	}
	return nil
}

// SetResultMessage links a used suggestion to the message it produced
func (s *SuggestionStorage) SetResultMessage(id, messageID string) error {
	_, err := s.db.Exec(
		`UPDATE suggestions SET message_id = ? WHERE id = ?`, messageID, id)
	if err != nil {
		return fmt.Errorf("failed to link suggestion message: %w", err)
	}
	return nil
}

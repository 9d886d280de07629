package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// SessionRecord represents a visitor session in the database
type SessionRecord struct {
	ID        string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
}

// SessionStorage handles storage of visitor sessions
type SessionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSessionStorage creates a new SQLite session storage
func NewSessionStorage(db *sql.DB, logger *logger.Logger) *SessionStorage {
	storage := &SessionStorage{
		db:     db,
		logger: logger.Named("sqlite-sessions"),
	}

	if err := storage.initDB(); err != nil {
		logger.Error("Failed to initialize session storage", Error(err))
	}

	return storage
}

func (s *SessionStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			name TEXT,
			email TEXT,
			phone TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

// StoreSession stores a new session record
func (s *SessionStorage) StoreSession(record *SessionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, created_at, name, email, phone) VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.CreatedAt.Format(time.RFC3339),
		record.Name,
		record.Email,
		record.Phone,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession returns a session by ID, or nil if it does not exist
func (s *SessionStorage) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, name, email, phone FROM sessions WHERE id = ?`, id)

	var record SessionRecord
	var createdAt string
	var name, email, phone sql.NullString
	if err := row.Scan(&record.ID, &createdAt, &name, &email, &phone); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}
	record.Name = name.String
	record.Email = email.String
	record.Phone = phone.String

	return &record, nil
}

// UpdateMetadata sets the visitor contact details for a session
func (s *SessionStorage) UpdateMetadata(id, name, email, phone string) error {
	result, err := s.db.Exec(
		`UPDATE sessions SET name = ?, email = ?, phone = ? WHERE id = ?`,
		name, email, phone, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session metadata: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// ColumnConfig describes which columns the admin chat list shows and in
// what order
type ColumnConfig struct {
	Columns []string `json:"columns"`
}

// DefaultColumns is the column layout used until an admin customizes it
var DefaultColumns = []string{"sessionId", "visitorName", "status", "messageCount", "lastMessageAt"}

// ColumnStorage persists the admin dashboard column layout. The table
// holds a single row keyed by a fixed ID.
type ColumnStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewColumnStorage creates a new SQLite column config storage
func NewColumnStorage(db *sql.DB, logger *logger.Logger) *ColumnStorage {
	storage := &ColumnStorage{
		db:     db,
		logger: logger.Named("sqlite-columns"),
	}

	if err := storage.initDB(); err != nil {
		logger.Error("Failed to initialize column storage", Error(err))
	}

	return storage
}

func (s *ColumnStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS column_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			config TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create column_config table: %w", err)
	}
	return nil
}

// GetConfig returns the stored column layout, or the default one
func (s *ColumnStorage) GetConfig() (*ColumnConfig, error) {
	row := s.db.QueryRow(`SELECT config FROM column_config WHERE id = 1`)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return &ColumnConfig{Columns: DefaultColumns}, nil
		}
		return nil, fmt.Errorf("failed to query column config: %w", err)
	}

	var config ColumnConfig
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, fmt.Errorf("failed to decode column config: %w", err)
	}
	return &config, nil
}

// SaveConfig replaces the stored column layout
func (s *ColumnStorage) SaveConfig(config *ColumnConfig) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode column config: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO column_config (id, config) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET config = excluded.config`,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to save column config: %w", err)
	}
	return nil
}

package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Conversation statuses
const (
	ConversationActive = "active"
	ConversationEnded  = "ended"
)

// Message sender types
const (
	SenderUser     = "user"
	SenderBot      = "bot"
	SenderOperator = "operator"
	SenderSystem   = "system"
)

// ConversationRecord represents a conversation in the database
type ConversationRecord struct {
	SessionID          string     `json:"sessionId"`
	Status             string     `json:"status"`
	SuggestionsEnabled bool       `json:"suggestionsEnabled"`
	CreatedAt          time.Time  `json:"createdAt"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
}

// MessageRecord represents a single chat message. Messages are immutable
// once created.
type MessageRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Sender       string    `json:"sender"`
	Content      string    `json:"content"`
	OperatorName string    `json:"operatorName,omitempty"`
	AttachmentID string    `json:"attachmentId,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	CreatedAt    time.Time `json:"timestamp"`
}

// ConversationSummary is the admin dashboard view of a conversation
type ConversationSummary struct {
	SessionID     string     `json:"sessionId"`
	Status        string     `json:"status"`
	VisitorName   string     `json:"visitorName,omitempty"`
	MessageCount  int        `json:"messageCount"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ConversationStorage handles storage of conversations and their messages
type ConversationStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewConversationStorage creates a new SQLite conversation storage
func NewConversationStorage(db *sql.DB, logger *logger.Logger) *ConversationStorage {
	storage := &ConversationStorage{
		db:     db,
		logger: logger.Named("sqlite-conversations"),
	}

	if err := storage.initDB(); err != nil {
		logger.Error("Failed to initialize conversation storage", Error(err))
	}

	return storage
}

func (s *ConversationStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			suggestions_enabled BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			operator_name TEXT,
			attachment_id TEXT,
			filename TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}

	return nil
}

// EnsureConversation creates an active conversation for the session if one
// does not exist yet. Returns true if a new conversation was created.
func (s *ConversationStorage) EnsureConversation(sessionID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO conversations (session_id, status, suggestions_enabled, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sessionID, ConversationActive, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to ensure conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// GetConversation returns a conversation by session ID, or nil if absent
func (s *ConversationStorage) GetConversation(sessionID string) (*ConversationRecord, error) {
	row := s.db.QueryRow(
		`SELECT session_id, status, suggestions_enabled, created_at, ended_at
		FROM conversations WHERE session_id = ?`, sessionID)

	var record ConversationRecord
	var createdAt string
	var endedAt sql.NullString
	if err := row.Scan(&record.SessionID, &record.Status, &record.SuggestionsEnabled, &createdAt, &endedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}
	if endedAt.Valid {
		if t, err := time.Parse(time.RFC3339, endedAt.String); err == nil {
			record.EndedAt = &t
		}
	}

	return &record, nil
}

// EndConversation marks a conversation as ended
func (s *ConversationStorage) EndConversation(sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET status = ?, ended_at = ? WHERE session_id = ?`,
		ConversationEnded, time.Now().UTC().Format(time.RFC3339), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end conversation: %w", err)
	}
	return nil
}

// ReactivateConversation flips an ended conversation back to active.
// Returns true if a row changed (i.e. the conversation really was ended).
func (s *ConversationStorage) ReactivateConversation(sessionID string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE conversations SET status = ?, ended_at = NULL WHERE session_id = ? AND status = ?`,
		ConversationActive, sessionID, ConversationEnded,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reactivate conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// SetSuggestionsEnabled toggles suggestion drafting for a conversation
func (s *ConversationStorage) SetSuggestionsEnabled(sessionID string, enabled bool) error {
	result, err := s.db.Exec(
		`UPDATE conversations SET suggestions_enabled = ? WHERE session_id = ?`,
		enabled, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to toggle suggestions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation not found: %s", sessionID)
	}
	return nil
}

// StoreMessage appends a message to a conversation
func (s *ConversationStorage) StoreMessage(record *MessageRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (id, session_id, sender, content, operator_name, attachment_id, filename, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.Sender,
		record.Content,
		record.OperatorName,
		record.AttachmentID,
		record.Filename,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessage returns a single message by ID within a session
func (s *ConversationStorage) GetMessage(sessionID, messageID string) (*MessageRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, sender, content, operator_name, attachment_id, filename, created_at
		FROM messages WHERE session_id = ? AND id = ?`, sessionID, messageID)

	record, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message not found: %s", messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return record, nil
}

// GetMessages returns the ordered message history for a session. A limit
// of 0 returns everything; otherwise the most recent messages win.
func (s *ConversationStorage) GetMessages(sessionID string, limit int) ([]*MessageRecord, error) {
	// Timestamps are stored at second resolution, so rowid breaks ties
	// between messages appended within the same second.
	query := `SELECT id, session_id, sender, content, operator_name, attachment_id, filename, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`
	args := []any{sessionID}
	if limit > 0 {
		// Most recent N, still returned oldest first
		query = `SELECT id, session_id, sender, content, operator_name, attachment_id, filename, created_at
			FROM (
				SELECT *, rowid AS row_order FROM messages WHERE session_id = ?
				ORDER BY created_at DESC, rowid DESC LIMIT ?
			) ORDER BY created_at ASC, row_order ASC`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var records []*MessageRecord
	for rows.Next() {
		record, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListConversations returns dashboard summaries, most recent activity first
func (s *ConversationStorage) ListConversations(status string) ([]*ConversationSummary, error) {
	query := `
		SELECT c.session_id, c.status, COALESCE(sess.name, ''), c.created_at,
			COUNT(m.id), MAX(m.created_at)
		FROM conversations c
		LEFT JOIN sessions sess ON sess.id = c.session_id
		LEFT JOIN messages m ON m.session_id = c.session_id`
	args := []any{}
	if status != "" {
		query += ` WHERE c.status = ?`
		args = append(args, status)
	}
	query += ` GROUP BY c.session_id ORDER BY MAX(m.created_at) DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var summary ConversationSummary
		var createdAt string
		var lastMessageAt sql.NullString
		if err := rows.Scan(&summary.SessionID, &summary.Status, &summary.VisitorName,
			&createdAt, &summary.MessageCount, &lastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation summary: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			summary.CreatedAt = t
		}
		if lastMessageAt.Valid {
			if t, err := time.Parse(time.RFC3339, lastMessageAt.String); err == nil {
				summary.LastMessageAt = &t
			}
		}
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}

// DeleteConversation removes a conversation and its messages
func (s *ConversationStorage) DeleteConversation(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := s.db.Exec(`DELETE FROM conversations WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation not found: %s", sessionID)
	}
	return nil
}

// scanner matches both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*MessageRecord, error) {
	var record MessageRecord
	var operatorName, attachmentID, filename sql.NullString
	var createdAt string
	if err := row.Scan(&record.ID, &record.SessionID, &record.Sender, &record.Content,
		&operatorName, &attachmentID, &filename, &createdAt); err != nil {
		return nil, err
	}
	record.OperatorName = operatorName.String
	record.AttachmentID = attachmentID.String
	record.Filename = filename.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}
	return &record, nil
}

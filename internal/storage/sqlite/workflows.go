package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Workflow statuses
const (
	WorkflowDraft     = "draft"
	WorkflowPublished = "published"
)

// WorkflowRecord represents a conversation workflow. Graph holds the
// serialized node/edge document as submitted by the editor.
type WorkflowRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Graph     string    `json:"graph"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WorkflowStorage handles storage of conversation workflows
type WorkflowStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewWorkflowStorage creates a new SQLite workflow storage
func NewWorkflowStorage(db *sql.DB, logger *logger.Logger) *WorkflowStorage {
	storage := &WorkflowStorage{
		db:     db,
		logger: logger.Named("sqlite-workflows"),
	}

	if err := storage.initDB(); err != nil {
		logger.Error("Failed to initialize workflow storage", Error(err))
	}

	return storage
}

func (s *WorkflowStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			graph TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create workflows table: %w", err)
	}
	return nil
}

// CreateWorkflow inserts a new workflow in draft status
func (s *WorkflowStorage) CreateWorkflow(record *WorkflowRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO workflows (id, name, status, graph, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Name, record.Status, record.Graph,
		record.CreatedAt.Format(time.RFC3339), record.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow returns a workflow by ID, or nil if absent
func (s *WorkflowStorage) GetWorkflow(id string) (*WorkflowRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, name, status, graph, created_at, updated_at FROM workflows WHERE id = ?`, id)
	record, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow: %w", err)
	}
	return record, nil
}

// ListWorkflows returns all workflows, most recently updated first
func (s *WorkflowStorage) ListWorkflows() ([]*WorkflowRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, name, status, graph, created_at, updated_at
		FROM workflows ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var records []*WorkflowRecord
	for rows.Next() {
		record, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpdateWorkflow replaces a workflow's name and graph. Editing a
// published workflow moves it back to draft.
func (s *WorkflowStorage) UpdateWorkflow(record *WorkflowRecord) error {
	result, err := s.db.Exec(
		`UPDATE workflows SET name = ?, status = ?, graph = ?, updated_at = ? WHERE id = ?`,
		record.Name, record.Status, record.Graph,
		record.UpdatedAt.Format(time.RFC3339), record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("workflow not found: %s", record.ID)
	}
	return nil
}

// SetStatus flips a workflow's lifecycle status
func (s *WorkflowStorage) SetStatus(id, status string) error {
	result, err := s.db.Exec(
		`UPDATE workflows SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set workflow status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("workflow not found: %s", id)
	}
	return nil
}

// DeleteWorkflow removes a workflow
func (s *WorkflowStorage) DeleteWorkflow(id string) error {
	result, err := s.db.Exec(`DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("workflow not found: %s", id)
	}
	return nil
}

func scanWorkflow(row scanner) (*WorkflowRecord, error) {
	var record WorkflowRecord
	var createdAt, updatedAt string
	if err := row.Scan(&record.ID, &record.Name, &record.Status, &record.Graph,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		record.UpdatedAt = t
	}
	return &record, nil
}

package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// CompanyRecord represents a company profile used by the widget
type CompanyRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	Website      string    `json:"website,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CompanyStorage handles storage of company profiles
type CompanyStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewCompanyStorage creates a new SQLite company storage
func NewCompanyStorage(db *sql.DB, logger *logger.Logger) *CompanyStorage {
	storage := &CompanyStorage{
		db:     db,
		logger: logger.Named("sqlite-companies"),
	}

	if err := storage.initDB(); err != nil {
		logger.Error("Failed to initialize company storage", Error(err))
	}

	return storage
}

func (s *CompanyStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS companies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			contact_email TEXT,
			website TEXT,
			notes TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create companies table: %w", err)
	}
	return nil
}

// CreateCompany inserts a new company
func (s *CompanyStorage) CreateCompany(record *CompanyRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO companies (id, name, contact_email, website, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Name, record.ContactEmail, record.Website, record.Notes,
		record.CreatedAt.Format(time.RFC3339), record.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	return nil
}

// GetCompany returns a company by ID, or nil if absent
func (s *CompanyStorage) GetCompany(id string) (*CompanyRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, name, contact_email, website, notes, created_at, updated_at
		FROM companies WHERE id = ?`, id)
	record, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query company: %w", err)
	}
	return record, nil
}

// ListCompanies returns all companies ordered by name
func (s *CompanyStorage) ListCompanies() ([]*CompanyRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, name, contact_email, website, notes, created_at, updated_at
		FROM companies ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	var records []*CompanyRecord
	for rows.Next() {
		record, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpdateCompany replaces a company's mutable fields
func (s *CompanyStorage) UpdateCompany(record *CompanyRecord) error {
	result, err := s.db.Exec(
		`UPDATE companies SET name = ?, contact_email = ?, website = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		record.Name, record.ContactEmail, record.Website, record.Notes,
		record.UpdatedAt.Format(time.RFC3339), record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("company not found: %s", record.ID)
	}
	return nil
}

// DeleteCompany removes a company
func (s *CompanyStorage) DeleteCompany(id string) error {
	result, err := s.db.Exec(`DELETE FROM companies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("company not found: %s", id)
	}
	return nil
}

func scanCompany(row scanner) (*CompanyRecord, error) {
	var record CompanyRecord
	var contactEmail, website, notes sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&record.ID, &record.Name, &contactEmail, &website, &notes,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	record.ContactEmail = contactEmail.String
	record.Website = website.String
	record.Notes = notes.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		record.UpdatedAt = t
	}
	return &record, nil
}

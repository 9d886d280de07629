package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// CompanyHandler contains the company profile CRUD handlers
type CompanyHandler struct {
	companies *sqlite.CompanyStorage
	logger    *logger.Logger
}

// NewCompanyHandler creates a new company API handler
func NewCompanyHandler(companies *sqlite.CompanyStorage, logger *logger.Logger) *CompanyHandler {
	return &CompanyHandler{
		companies: companies,
		logger:    logger.Named("company-handler"),
	}
}

type companyRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contactEmail"`
	Website      string `json:"website"`
	Notes        string `json:"notes"`
}

// List returns all companies
func (h *CompanyHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.companies.ListCompanies()
	if err != nil {
		h.logger.Error("Failed to list companies", logger.Error(err))
		http.Error(w, "Failed to list companies", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*sqlite.CompanyRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"companies": records})
}

// Get returns one company
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.companies.GetCompany(chi.URLParam(r, "companyID"))
	if err != nil {
		h.logger.Error("Failed to load company", logger.Error(err))
		http.Error(w, "Failed to load company", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Company not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// Create adds a new company. The name is required.
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "Company name is required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	record := &sqlite.CompanyRecord{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		ContactEmail: req.ContactEmail,
		Website:      req.Website,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.companies.CreateCompany(record); err != nil {
		h.logger.Error("Failed to create company", logger.Error(err))
		http.Error(w, "Failed to create company", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

// Update replaces a company's details. The name is required.
func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")

	var req companyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "Company name is required", http.StatusBadRequest)
		return
	}

	existing, err := h.companies.GetCompany(companyID)
	if err != nil {
		h.logger.Error("Failed to load company", logger.Error(err))
		http.Error(w, "Failed to load company", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "Company not found", http.StatusNotFound)
		return
	}

	existing.Name = strings.TrimSpace(req.Name)
	existing.ContactEmail = req.ContactEmail
	existing.Website = req.Website
	existing.Notes = req.Notes
	existing.UpdatedAt = time.Now().UTC()

	if err := h.companies.UpdateCompany(existing); err != nil {
		h.logger.Error("Failed to update company", logger.Error(err))
		http.Error(w, "Failed to update company", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(existing)
}

// Delete removes a company
func (h *CompanyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.companies.DeleteCompany(chi.URLParam(r, "companyID")); err != nil {
		http.Error(w, "Company not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "deleted"})
}

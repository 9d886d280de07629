package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// WorkflowHandler contains the workflow editor handlers
type WorkflowHandler struct {
	workflows *sqlite.WorkflowStorage
	logger    *logger.Logger
}

// NewWorkflowHandler creates a new workflow API handler
func NewWorkflowHandler(workflows *sqlite.WorkflowStorage, logger *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		workflows: workflows,
		logger:    logger.Named("workflow-handler"),
	}
}

type workflowRequest struct {
	Name  string          `json:"name"`
	Graph json.RawMessage `json:"graph"`
}

type workflowGraph struct {
	Start string `json:"start"`
	Nodes []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"nodes"`
	Edges []struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"edges"`
}

// validateGraph checks the structural rules a workflow must satisfy
// before it can be published: parseable JSON, unique non-empty node
// IDs, a resolvable start node, and edges that reference known nodes.
func validateGraph(raw []byte) error {
	var graph workflowGraph
	if err := json.Unmarshal(raw, &graph); err != nil {
		return fmt.Errorf("graph is not valid JSON: %w", err)
	}
	if len(graph.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}

	ids := make(map[string]bool, len(graph.Nodes))
	hasStartNode := false
	for _, node := range graph.Nodes {
		if node.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if ids[node.ID] {
			return fmt.Errorf("duplicate node id: %s", node.ID)
		}
		ids[node.ID] = true
		if node.Type == "start" {
			hasStartNode = true
		}
	}

	if graph.Start != "" {
		if !ids[graph.Start] {
			return fmt.Errorf("start references unknown node: %s", graph.Start)
		}
	} else if !hasStartNode {
		return fmt.Errorf("graph has no start node")
	}

	for _, edge := range graph.Edges {
		if !ids[edge.From] {
			return fmt.Errorf("edge references unknown node: %s", edge.From)
		}
		if !ids[edge.To] {
			return fmt.Errorf("edge references unknown node: %s", edge.To)
		}
	}
	return nil
}

// List returns all workflows
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.workflows.ListWorkflows()
	if err != nil {
		h.logger.Error("Failed to list workflows", logger.Error(err))
		http.Error(w, "Failed to list workflows", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*sqlite.WorkflowRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"workflows": records})
}

// Get returns one workflow
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.workflows.GetWorkflow(chi.URLParam(r, "workflowID"))
	if err != nil {
		h.logger.Error("Failed to load workflow", logger.Error(err))
		http.Error(w, "Failed to load workflow", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Workflow not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// Create adds a new draft workflow
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "Workflow name is required", http.StatusBadRequest)
		return
	}
	if len(req.Graph) == 0 {
		req.Graph = json.RawMessage(`{"nodes":[],"edges":[]}`)
	}

	now := time.Now().UTC()
	record := &sqlite.WorkflowRecord{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Status:    sqlite.WorkflowDraft,
		Graph:     string(req.Graph),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.workflows.CreateWorkflow(record); err != nil {
		h.logger.Error("Failed to create workflow", logger.Error(err))
		http.Error(w, "Failed to create workflow", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

// Update replaces a workflow's name and graph. Any edit moves the
// workflow back to draft until it is published again.
func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "Workflow name is required", http.StatusBadRequest)
		return
	}

	existing, err := h.workflows.GetWorkflow(workflowID)
	if err != nil {
		h.logger.Error("Failed to load workflow", logger.Error(err))
		http.Error(w, "Failed to load workflow", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "Workflow not found", http.StatusNotFound)
		return
	}

	existing.Name = strings.TrimSpace(req.Name)
	existing.Status = sqlite.WorkflowDraft
	if len(req.Graph) > 0 {
		existing.Graph = string(req.Graph)
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := h.workflows.UpdateWorkflow(existing); err != nil {
		h.logger.Error("Failed to update workflow", logger.Error(err))
		http.Error(w, "Failed to update workflow", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(existing)
}

// Delete removes a workflow
func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.workflows.DeleteWorkflow(chi.URLParam(r, "workflowID")); err != nil {
		http.Error(w, "Workflow not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "deleted"})
}

// Validate checks a workflow graph without saving anything
func (h *WorkflowHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Graph json.RawMessage `json:"graph"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := validateGraph(req.Graph); err != nil {
		json.NewEncoder(w).Encode(map[string]any{"valid": false, "error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"valid": true})
}

// Publish moves a draft workflow to published after validating its
// graph.
func (h *WorkflowHandler) Publish(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	record, err := h.workflows.GetWorkflow(workflowID)
	if err != nil {
		h.logger.Error("Failed to load workflow", logger.Error(err))
		http.Error(w, "Failed to load workflow", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Workflow not found", http.StatusNotFound)
		return
	}

	if err := validateGraph([]byte(record.Graph)); err != nil {
		http.Error(w, "Workflow is not valid: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.workflows.SetStatus(workflowID, sqlite.WorkflowPublished); err != nil {
		h.logger.Error("Failed to publish workflow", logger.Error(err))
		http.Error(w, "Failed to publish workflow", http.StatusInternalServerError)
		return
	}

	record.Status = sqlite.WorkflowPublished
	h.logger.Info("Workflow published", logger.String("workflow_id", workflowID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

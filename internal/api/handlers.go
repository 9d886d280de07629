package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/config"
	"github.com/victordov/chatbot-construction-sub001/internal/relay"
	"github.com/victordov/chatbot-construction-sub001/internal/session"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Handler contains the widget-facing API handlers
type Handler struct {
	sessionService *session.Service
	chatService    *chat.Service
	relayHandler   *relay.Handler
	config         *config.Config
	logger         *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(sessionService *session.Service, chatService *chat.Service, relayHandler *relay.Handler, config *config.Config, logger *logger.Logger) *Handler {
	return &Handler{
		sessionService: sessionService,
		chatService:    chatService,
		relayHandler:   relayHandler,
		config:         config,
		logger:         logger.Named("api-handler"),
	}
}

// GetSession returns the session for the supplied ID, minting a fresh
// one when the ID is missing or unknown.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	record, created, err := h.sessionService.GetOrCreate(sessionID)
	if err != nil {
		h.logger.Error("Failed to get or create session", logger.Error(err))
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessionId": record.ID,
		"created":   created,
		"name":      record.Name,
		"email":     record.Email,
		"phone":     record.Phone,
	})
}

// UpdateSessionMetadata stores the visitor's contact details
func (h *Handler) UpdateSessionMetadata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	if err := h.sessionService.UpdateMetadata(req.SessionID, req.Name, req.Email, req.Phone); err != nil {
		h.logger.Error("Failed to update session metadata", logger.Error(err))
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// GetChatHistory returns the message history for a session
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	messages, err := h.chatService.History(sessionID)
	if err != nil {
		h.logger.Error("Failed to load chat history", logger.Error(err))
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	payload := make([]map[string]any, 0, len(messages))
	for _, record := range messages {
		payload = append(payload, chat.MessageEventData(record))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessionId": sessionID,
		"messages":  payload,
	})
}

// PostChatMessage accepts a visitor message over HTTP. The widget uses
// this as a fallback when the socket is unavailable.
func (h *Handler) PostChatMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Session ID and message are required", http.StatusBadRequest)
		return
	}

	record, err := h.relayHandler.AcceptVisitorMessage(req.SessionID, req.Message)
	if err != nil {
		h.logger.Error("Failed to accept message", logger.Error(err))
		http.Error(w, "Failed to store message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chat.MessageEventData(record))
}

// Upload stores a file attachment for a session and announces it on
// the socket layer.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.config.Uploads.MaxSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "File too large or malformed upload", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "File is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	attachmentID := uuid.NewString()

	if err := os.MkdirAll(h.config.Uploads.Dir, 0755); err != nil {
		h.logger.Error("Failed to create uploads directory", logger.Error(err))
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	destPath := filepath.Join(h.config.Uploads.Dir, attachmentID)
	dest, err := os.Create(destPath)
	if err != nil {
		h.logger.Error("Failed to create upload file", logger.Error(err))
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		h.logger.Error("Failed to write upload file", logger.Error(err))
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	record, err := h.chatService.AppendAttachmentMessage(sessionID, attachmentID, filename)
	if err != nil {
		h.logger.Error("Failed to record attachment", logger.Error(err))
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	h.logger.Info("File uploaded",
		logger.String("session_id", sessionID),
		logger.String("attachment_id", attachmentID),
		logger.String("filename", filename))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"attachmentId": attachmentID,
		"filename":     filename,
		"messageId":    record.ID,
	})
}

// Download serves a previously uploaded attachment
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	attachmentID := chi.URLParam(r, "attachmentID")
	if _, err := uuid.Parse(attachmentID); err != nil {
		http.Error(w, "Invalid attachment ID", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.config.Uploads.Dir, attachmentID)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachmentID))
	http.ServeFile(w, r, path)
}

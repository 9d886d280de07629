package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/export"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// AdminHandler contains the dashboard API handlers
type AdminHandler struct {
	conversations *sqlite.ConversationStorage
	columns       *sqlite.ColumnStorage
	logger        *logger.Logger
}

// NewAdminHandler creates a new admin API handler
func NewAdminHandler(conversations *sqlite.ConversationStorage, columns *sqlite.ColumnStorage, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		conversations: conversations,
		columns:       columns,
		logger:        logger.Named("admin-handler"),
	}
}

// ListChats returns conversation summaries, optionally filtered by
// status.
func (h *AdminHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != sqlite.ConversationActive && status != sqlite.ConversationEnded {
		http.Error(w, "Invalid status filter", http.StatusBadRequest)
		return
	}

	summaries, err := h.conversations.ListConversations(status)
	if err != nil {
		h.logger.Error("Failed to list conversations", logger.Error(err))
		http.Error(w, "Failed to list chats", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []*sqlite.ConversationSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"chats": summaries})
}

// GetChatMessages returns the full transcript of one conversation
func (h *AdminHandler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conversation, err := h.conversations.GetConversation(sessionID)
	if err != nil {
		h.logger.Error("Failed to load conversation", logger.Error(err))
		http.Error(w, "Failed to load chat", http.StatusInternalServerError)
		return
	}
	if conversation == nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}

	messages, err := h.conversations.GetMessages(sessionID, 0)
	if err != nil {
		h.logger.Error("Failed to load messages", logger.Error(err))
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	payload := make([]map[string]any, 0, len(messages))
	for _, record := range messages {
		payload = append(payload, chat.MessageEventData(record))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessionId": sessionID,
		"status":    conversation.Status,
		"messages":  payload,
	})
}

// DeleteChat removes a conversation and its transcript
func (h *AdminHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.conversations.DeleteConversation(sessionID); err != nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}

	h.logger.Info("Conversation deleted", logger.String("session_id", sessionID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "deleted"})
}

// GetColumns returns the dashboard column layout
func (h *AdminHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	config, err := h.columns.GetConfig()
	if err != nil {
		h.logger.Error("Failed to load column config", logger.Error(err))
		http.Error(w, "Failed to load columns", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(config)
}

// SaveColumns replaces the dashboard column layout
func (h *AdminHandler) SaveColumns(w http.ResponseWriter, r *http.Request) {
	var config sqlite.ColumnConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(config.Columns) == 0 {
		http.Error(w, "At least one column is required", http.StatusBadRequest)
		return
	}

	if err := h.columns.SaveConfig(&config); err != nil {
		h.logger.Error("Failed to save column config", logger.Error(err))
		http.Error(w, "Failed to save columns", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(config)
}

// ExportChats streams an XLSX workbook of all conversations with
// their transcripts.
func (h *AdminHandler) ExportChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.conversations.ListConversations("")
	if err != nil {
		h.logger.Error("Failed to list conversations for export", logger.Error(err))
		http.Error(w, "Failed to export chats", http.StatusInternalServerError)
		return
	}

	transcripts := make(map[string][]*sqlite.MessageRecord, len(summaries))
	for _, summary := range summaries {
		messages, err := h.conversations.GetMessages(summary.SessionID, 0)
		if err != nil {
			h.logger.Error("Failed to load transcript for export",
				logger.Error(err), logger.String("session_id", summary.SessionID))
			http.Error(w, "Failed to export chats", http.StatusInternalServerError)
			return
		}
		transcripts[summary.SessionID] = messages
	}

	filename := "chats-" + time.Now().UTC().Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	if err := export.Conversations(w, summaries, transcripts); err != nil {
		h.logger.Error("Failed to write export workbook", logger.Error(err))
	}
}

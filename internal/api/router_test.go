package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/victordov/chatbot-construction-sub001/internal/bot"
	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/config"
	"github.com/victordov/chatbot-construction-sub001/internal/handoff"
	"github.com/victordov/chatbot-construction-sub001/internal/relay"
	"github.com/victordov/chatbot-construction-sub001/internal/secure"
	"github.com/victordov/chatbot-construction-sub001/internal/session"
	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

const testAdminToken = "test-token"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.NewNop()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Server.CORSAllowedOrigins = []string{"*"}
	cfg.Admin.AuthToken = testAdminToken
	cfg.Uploads.Dir = t.TempDir()
	cfg.Uploads.MaxSizeMB = 1

	sessionStorage := sqlite.NewSessionStorage(db, log)
	conversationStorage := sqlite.NewConversationStorage(db, log)
	companyStorage := sqlite.NewCompanyStorage(db, log)
	workflowStorage := sqlite.NewWorkflowStorage(db, log)
	columnStorage := sqlite.NewColumnStorage(db, log)

	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	chatService := chat.NewService(conversationStorage, wsServer, log, 0)
	coordinator := handoff.NewCoordinator(conversationStorage, wsServer, time.Minute, log)
	t.Cleanup(coordinator.Stop)
	responder := bot.NewResponder(nil, bot.Config{Timeout: time.Second}, log)
	encryptionService := secure.NewService(wsServer, log)

	relayHandler := relay.NewHandler(chatService, coordinator, nil, responder, encryptionService, wsServer, false, false, log)
	wsServer.SetMessageHandler(relayHandler)

	sessionService := session.NewService(sessionStorage, log)

	handler := NewHandler(sessionService, chatService, relayHandler, cfg, log)
	adminHandler := NewAdminHandler(conversationStorage, columnStorage, log)
	companyHandler := NewCompanyHandler(companyStorage, log)
	workflowHandler := NewWorkflowHandler(workflowStorage, log)

	return NewRouter(handler, adminHandler, companyHandler, workflowHandler, wsServer, cfg, log).Routes()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(AdminTokenHeader, token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthUnauthenticated(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("expected status ok, got %q", health.Status)
	}
}

func TestSessionIssueAndMetadata(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/session", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var created struct {
		SessionID string `json:"sessionId"`
		Created   bool   `json:"created"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.SessionID == "" || !created.Created {
		t.Fatalf("expected a freshly minted session, got %+v", created)
	}

	// A second request with the same ID returns the same session
	w = doJSON(t, router, "GET", "/api/session?sessionId="+created.SessionID, nil, "")
	var existing struct {
		SessionID string `json:"sessionId"`
		Created   bool   `json:"created"`
	}
	if err := json.NewDecoder(w.Body).Decode(&existing); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if existing.SessionID != created.SessionID || existing.Created {
		t.Errorf("expected the existing session back, got %+v", existing)
	}

	w = doJSON(t, router, "POST", "/api/session/metadata", map[string]string{
		"sessionId": created.SessionID,
		"name":      "Jordan",
		"email":     "jordan@example.com",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/session?sessionId="+created.SessionID, nil, "")
	var updated struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Name != "Jordan" {
		t.Errorf("expected name Jordan, got %q", updated.Name)
	}
}

func TestChatMessageAndHistory(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/chat/message", map[string]string{
		"sessionId": "session-1",
		"message":   "hello there",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/chat/history?sessionId=session-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var history struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(history.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(history.Messages))
	}
	if history.Messages[0]["message"] != "hello there" {
		t.Errorf("unexpected message content: %v", history.Messages[0]["message"])
	}
	if history.Messages[0]["sender"] != "user" {
		t.Errorf("expected sender user, got %v", history.Messages[0]["sender"])
	}
}

func TestChatMessageValidation(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/chat/message", map[string]string{"message": "no session"}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing session ID, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/chat/message", map[string]string{"sessionId": "s1", "message": "  "}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank message, got %d", w.Code)
	}
}

func TestUploadRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("sessionId", "session-1"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	part, err := mw.CreateFormFile("file", "floorplan.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write([]byte("pdf bytes"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AttachmentID string `json:"attachmentId"`
		Filename     string `json:"filename"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Filename != "floorplan.pdf" || resp.AttachmentID == "" {
		t.Fatalf("unexpected upload response: %+v", resp)
	}

	download := doJSON(t, router, "GET", "/api/upload/"+resp.AttachmentID, nil, "")
	if download.Code != http.StatusOK {
		t.Fatalf("expected 200 on download, got %d", download.Code)
	}
	if download.Body.String() != "pdf bytes" {
		t.Errorf("unexpected download body: %q", download.Body.String())
	}
}

func TestAdminAuthRequired(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/admin/chats", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/admin/chats", nil, "wrong-token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/admin/chats", nil, testAdminToken)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", w.Code)
	}
}

func TestAdminChatListAndDelete(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, "POST", "/api/chat/message", map[string]string{
		"sessionId": "session-1", "message": "hello",
	}, "")

	w := doJSON(t, router, "GET", "/api/admin/chats", nil, testAdminToken)
	var list struct {
		Chats []struct {
			SessionID    string `json:"sessionId"`
			MessageCount int    `json:"messageCount"`
		} `json:"chats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Chats) != 1 || list.Chats[0].SessionID != "session-1" {
		t.Fatalf("unexpected chat list: %+v", list.Chats)
	}
	if list.Chats[0].MessageCount != 1 {
		t.Errorf("expected message count 1, got %d", list.Chats[0].MessageCount)
	}

	w = doJSON(t, router, "DELETE", "/api/admin/chats/session-1", nil, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/admin/chats", nil, testAdminToken)
	var after struct {
		Chats []any `json:"chats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&after); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(after.Chats) != 0 {
		t.Errorf("expected empty chat list after delete, got %d", len(after.Chats))
	}
}

func TestColumnConfigRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/admin/columns", nil, testAdminToken)
	var defaults sqlite.ColumnConfig
	if err := json.NewDecoder(w.Body).Decode(&defaults); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(defaults.Columns) == 0 {
		t.Fatal("expected default columns")
	}

	custom := sqlite.ColumnConfig{Columns: []string{"sessionId", "status"}}
	w = doJSON(t, router, "PUT", "/api/admin/columns", custom, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/admin/columns", nil, testAdminToken)
	var stored sqlite.ColumnConfig
	if err := json.NewDecoder(w.Body).Decode(&stored); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(stored.Columns) != 2 || stored.Columns[0] != "sessionId" {
		t.Errorf("unexpected stored columns: %v", stored.Columns)
	}

	w = doJSON(t, router, "PUT", "/api/admin/columns", sqlite.ColumnConfig{}, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty column list, got %d", w.Code)
	}
}

func TestCompanyCRUD(t *testing.T) {
	router := newTestRouter(t)

	// Name is required
	w := doJSON(t, router, "POST", "/api/companies/", map[string]string{"name": "  "}, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing name, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/companies/", map[string]string{
		"name":         "Acme Rentals",
		"contactEmail": "office@acme.test",
	}, testAdminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var company sqlite.CompanyRecord
	if err := json.NewDecoder(w.Body).Decode(&company); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	w = doJSON(t, router, "PUT", "/api/companies/"+company.ID, map[string]string{
		"name": "Acme Property Group",
	}, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/companies/"+company.ID, nil, testAdminToken)
	var updated sqlite.CompanyRecord
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Name != "Acme Property Group" {
		t.Errorf("expected updated name, got %q", updated.Name)
	}

	w = doJSON(t, router, "DELETE", "/api/companies/"+company.ID, nil, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/companies/"+company.ID, nil, testAdminToken)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestWorkflowPublishRequiresValidGraph(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/workflows/", map[string]any{
		"name": "Welcome flow",
	}, testAdminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var workflow sqlite.WorkflowRecord
	if err := json.NewDecoder(w.Body).Decode(&workflow); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if workflow.Status != sqlite.WorkflowDraft {
		t.Errorf("expected draft status, got %q", workflow.Status)
	}

	// The empty default graph cannot be published
	w = doJSON(t, router, "POST", "/api/workflows/"+workflow.ID+"/publish", nil, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 publishing an empty graph, got %d", w.Code)
	}

	w = doJSON(t, router, "PUT", "/api/workflows/"+workflow.ID, map[string]any{
		"name": "Welcome flow",
		"graph": map[string]any{
			"start": "n1",
			"nodes": []map[string]string{{"id": "n1", "type": "start"}, {"id": "n2", "type": "message"}},
			"edges": []map[string]string{{"from": "n1", "to": "n2"}},
		},
	}, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/workflows/"+workflow.ID+"/publish", nil, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var published sqlite.WorkflowRecord
	if err := json.NewDecoder(w.Body).Decode(&published); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if published.Status != sqlite.WorkflowPublished {
		t.Errorf("expected published status, got %q", published.Status)
	}

	// Editing a published workflow moves it back to draft
	w = doJSON(t, router, "PUT", "/api/workflows/"+workflow.ID, map[string]any{
		"name": "Welcome flow v2",
	}, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var edited sqlite.WorkflowRecord
	if err := json.NewDecoder(w.Body).Decode(&edited); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if edited.Status != sqlite.WorkflowDraft {
		t.Errorf("expected draft after edit, got %q", edited.Status)
	}
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/victordov/chatbot-construction-sub001/internal/config"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Router wires the HTTP surface: widget endpoints, admin endpoints and
// the socket upgrade paths.
type Router struct {
	handler         *Handler
	adminHandler    *AdminHandler
	companyHandler  *CompanyHandler
	workflowHandler *WorkflowHandler
	wsServer        *websocket.Server
	config          *config.Config
	logger          *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	handler *Handler,
	adminHandler *AdminHandler,
	companyHandler *CompanyHandler,
	workflowHandler *WorkflowHandler,
	wsServer *websocket.Server,
	config *config.Config,
	logger *logger.Logger,
) *Router {
	return &Router{
		handler:         handler,
		adminHandler:    adminHandler,
		companyHandler:  companyHandler,
		workflowHandler: workflowHandler,
		wsServer:        wsServer,
		config:          config,
		logger:          logger.Named("router"),
	}
}

// Routes builds the chi route tree
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.config.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", AdminTokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	adminAuth := AdminAuth(rt.config.Admin.AuthToken, rt.logger)

	// Socket upgrade paths
	r.Get("/ws/widget", rt.widgetSocket)
	r.With(adminAuth).Get("/ws/admin", rt.adminSocket)

	r.Route("/api", func(r chi.Router) {
		// Widget endpoints
		r.Get("/health", rt.health)
		r.Get("/session", rt.handler.GetSession)
		r.Post("/session/metadata", rt.handler.UpdateSessionMetadata)
		r.Get("/chat/history", rt.handler.GetChatHistory)
		r.Post("/chat/message", rt.handler.PostChatMessage)
		r.Post("/upload", rt.handler.Upload)
		r.Get("/upload/{attachmentID}", rt.handler.Download)

		// Dashboard endpoints
		r.Group(func(r chi.Router) {
			r.Use(adminAuth)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/chats", rt.adminHandler.ListChats)
				r.Get("/chats/export", rt.adminHandler.ExportChats)
				r.Get("/chats/{sessionID}/messages", rt.adminHandler.GetChatMessages)
				r.Delete("/chats/{sessionID}", rt.adminHandler.DeleteChat)
				r.Get("/columns", rt.adminHandler.GetColumns)
				r.Put("/columns", rt.adminHandler.SaveColumns)
			})

			r.Route("/companies", func(r chi.Router) {
				r.Get("/", rt.companyHandler.List)
				r.Post("/", rt.companyHandler.Create)
				r.Get("/{companyID}", rt.companyHandler.Get)
				r.Put("/{companyID}", rt.companyHandler.Update)
				r.Delete("/{companyID}", rt.companyHandler.Delete)
			})

			r.Route("/workflows", func(r chi.Router) {
				r.Get("/", rt.workflowHandler.List)
				r.Post("/", rt.workflowHandler.Create)
				r.Post("/validate", rt.workflowHandler.Validate)
				r.Get("/{workflowID}", rt.workflowHandler.Get)
				r.Put("/{workflowID}", rt.workflowHandler.Update)
				r.Delete("/{workflowID}", rt.workflowHandler.Delete)
				r.Post("/{workflowID}/publish", rt.workflowHandler.Publish)
			})
		})
	})

	return r
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	visitors, operators := rt.wsServer.ConnectionCounts()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"visitors":  visitors,
		"operators": operators,
	})
}

func (rt *Router) widgetSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}
	rt.wsServer.HandleConnection(w, r, websocket.RoleVisitor, sessionID)
}

func (rt *Router) adminSocket(w http.ResponseWriter, r *http.Request) {
	rt.wsServer.HandleConnection(w, r, websocket.RoleOperator, "")
}

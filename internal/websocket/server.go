package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// Client roles. Visitors are widget connections bound to a session;
// operators are admin dashboard connections.
const (
	RoleVisitor  = "visitor"
	RoleOperator = "operator"
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MessageHandler defines the interface for handling incoming WebSocket messages
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data map[string]any) error
	HandleConnect(client *Client)
	HandleDisconnect(client *Client)
}

// envelope carries a message plus its routing scope through the hub
type envelope struct {
	message *Message

	// Routing: role limits delivery to clients of that role; sessionID
	// limits delivery to clients bound to that session. Empty means no
	// restriction on that axis.
	role      string
	sessionID string
}

// Client represents a WebSocket client
type Client struct {
	id        string
	role      string
	sessionID string

	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server represents a WebSocket server
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *envelope
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler // Handler for incoming messages
}

// NewServer creates a new WebSocket server
func NewServer(logger *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins; CORS is enforced on the HTTP surface
			},
		},
		logger: logger.Named("web-socket"),
	}
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// Run starts the WebSocket server
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered",
				String("client_id", client.id),
				String("role", client.role),
				String("session_id", client.sessionID),
				String("client_count", fmt.Sprintf("%d", clientCount)))
			if s.messageHandler != nil {
				s.messageHandler.HandleConnect(client)
			}

		case client := <-s.unregister:
			s.mu.Lock()
			_, ok := s.clients[client]
			if ok {
				delete(s.clients, client)
				// Mark client as closed first to prevent new messages
				client.mu.Lock()
				client.closed = true
				client.mu.Unlock()
				// Then close the channel
				close(client.send)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			if ok && s.messageHandler != nil {
				s.messageHandler.HandleDisconnect(client)
			}
			s.logger.Debug("Client unregistered",
				String("client_id", client.id),
				String("client_count", fmt.Sprintf("%d", clientCount)))

		case env := <-s.broadcast:
			s.mu.RLock()
			clientsToRemove := make([]*Client, 0)
			for client := range s.clients {
				// Check if client is still valid before sending
				client.mu.Lock()
				if client.closed {
					clientsToRemove = append(clientsToRemove, client)
					client.mu.Unlock()
					continue
				}
				client.mu.Unlock()

				if !matchesScope(client, env) {
					continue
				}

				select {
				case client.send <- env.message:
					// Message sent successfully
				default:
					// Channel is full, mark for removal
					clientsToRemove = append(clientsToRemove, client)
				}
			}
			s.mu.RUnlock()

			// Clean up failed clients
			if len(clientsToRemove) > 0 {
				s.mu.Lock()
				for _, client := range clientsToRemove {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.mu.Lock()
						if !client.closed {
							client.closed = true
							close(client.send)
						}
						client.mu.Unlock()
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

// matchesScope determines whether a client falls inside an envelope's
// routing scope.
func matchesScope(client *Client, env *envelope) bool {
	if env.role != "" && client.role != env.role {
		return false
	}
	if env.sessionID != "" && client.sessionID != env.sessionID {
		return false
	}
	return true
}

// HandleConnection handles a WebSocket connection for the given role.
// Visitor connections must carry the session ID they belong to.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request, role, sessionID string) {
	s.logger.Info("Handling new WebSocket connection request",
		String("role", role),
		String("session_id", sessionID),
		String("remote_addr", r.RemoteAddr))

	// Upgrade HTTP connection to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	// Create client
	client := &Client{
		id:        uuid.NewString(),
		role:      role,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan *Message, 256),
		server:    s,
		closeChan: make(chan struct{}),
	}

	// Register client
	s.register <- client

	// Start client goroutines
	go client.readPump()
	go client.writePump()
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(message *Message) {
	s.broadcast <- &envelope{message: message}
}

// BroadcastToOperators sends a message to all operator dashboard clients
func (s *Server) BroadcastToOperators(message *Message) {
	s.broadcast <- &envelope{message: message, role: RoleOperator}
}

// SendToSession sends a message to every visitor connection bound to the
// session, fanning chat state out across the visitor's open tabs.
func (s *Server) SendToSession(sessionID string, message *Message) {
	s.broadcast <- &envelope{message: message, role: RoleVisitor, sessionID: sessionID}
}

// ConnectionCounts returns the number of connected visitor and operator
// clients.
func (s *Server) ConnectionCounts() (visitors, operators int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.role == RoleOperator {
			operators++
		} else {
			visitors++
		}
	}
	return visitors, operators
}

// SessionConnectionCount returns the number of visitor connections bound
// to the given session.
func (s *Server) SessionConnectionCount(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for client := range s.clients {
		if client.role == RoleVisitor && client.sessionID == sessionID {
			count++
		}
	}
	return count
}

// ID returns the client's connection identifier
func (c *Client) ID() string {
	return c.id
}

// Role returns the client's role (visitor or operator)
func (c *Client) Role() string {
	return c.role
}

// SessionID returns the session a visitor client is bound to (empty for operators)
func (c *Client) SessionID() string {
	return c.sessionID
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()

		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		// Check if client is closed
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		// Read message
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", Error(err))
			}
			break
		}

		// Parse incoming message
		var message struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}

		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", Error(err))
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			String("type", message.Type),
			String("role", c.role),
			String("client_id", c.id))

		// Handle message if handler is set
		if c.server.messageHandler != nil {
			if err := c.server.messageHandler.HandleMessage(c, message.Type, message.Data); err != nil {
				c.server.logger.Error("Failed to handle WebSocket message",
					Error(err),
					String("type", message.Type))
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Channel closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.mu.Unlock()
				return
			}

			// Marshal message to JSON
			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal message", Error(err))
				c.mu.Unlock()
				continue
			}

			w.Write(data)

			// Close writer
			if err := w.Close(); err != nil {
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeChan)
	c.conn.Close()
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if client is closed
	if c.closed {
		return false
	}

	// Try to send message with non-blocking select
	select {
	case c.send <- message:
		return true
	default:
		// Channel is full, drop message
		return false
	}
}

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

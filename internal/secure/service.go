package secure

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/box"

	"github.com/victordov/chatbot-construction-sub001/internal/chat"
	"github.com/victordov/chatbot-construction-sub001/internal/websocket"
	"github.com/victordov/chatbot-construction-sub001/pkg/logger"
)

// ErrNotReady is returned when a session attempts encrypted traffic
// before the key exchange completed.
var ErrNotReady = errors.New("encryption not established for session")

// Receiver is a socket client that can be addressed directly
type Receiver interface {
	SendMessage(msg *websocket.Message) bool
}

type sessionKeys struct {
	publicKey  *[32]byte
	privateKey *[32]byte
	sharedKey  *[32]byte
	ready      bool
}

// Service implements the optional per-session key exchange. Each
// session gets an ephemeral server key pair; once the client's public
// key arrives, payloads can be sealed and opened with the box
// construction. Falling back to plaintext is allowed but always logged
// and announced to the session.
type Service struct {
	mu          sync.Mutex
	sessions    map[string]*sessionKeys
	broadcaster chat.Broadcaster
	logger      *logger.Logger
}

// NewService creates a new encryption helper
func NewService(broadcaster chat.Broadcaster, log *logger.Logger) *Service {
	return &Service{
		sessions:    make(map[string]*sessionKeys),
		broadcaster: broadcaster,
		logger:      log.Named("secure"),
	}
}

// StartExchange generates a fresh server key pair for the session and
// advertises the public key with encryption-init.
func (s *Service) StartExchange(sessionID string, receiver Receiver) error {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	s.mu.Lock()
	s.sessions[sessionID] = &sessionKeys{publicKey: publicKey, privateKey: privateKey}
	s.mu.Unlock()

	if !receiver.SendMessage(&websocket.Message{
		Type: chat.EventEncryptionInit,
		Data: map[string]any{
			"sessionId": sessionID,
			"publicKey": base64.StdEncoding.EncodeToString(publicKey[:]),
		},
	}) {
		return fmt.Errorf("failed to send encryption-init")
	}
	return nil
}

// HandleClientKey completes the exchange with the visitor's public key
// and confirms with encryption-ready.
func (s *Service) HandleClientKey(sessionID, clientPublicKey string, receiver Receiver) error {
	raw, err := base64.StdEncoding.DecodeString(clientPublicKey)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("invalid client public key")
	}

	s.mu.Lock()
	keys, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no key exchange in progress for session %s", sessionID)
	}
	var peerKey [32]byte
	copy(peerKey[:], raw)
	keys.sharedKey = new([32]byte)
	box.Precompute(keys.sharedKey, &peerKey, keys.privateKey)
	keys.ready = true
	s.mu.Unlock()

	s.logger.Info("Encryption established", String("session_id", sessionID))

	if !receiver.SendMessage(&websocket.Message{
		Type: chat.EventEncryptionReady,
		Data: map[string]any{"sessionId": sessionID},
	}) {
		return fmt.Errorf("failed to send encryption-ready")
	}
	return nil
}

// Ready reports whether a session finished the key exchange
func (s *Service) Ready(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.sessions[sessionID]
	return ok && keys.ready
}

// Open decrypts a sealed payload for a session. Nonce and ciphertext
// are base64 encoded on the wire.
func (s *Service) Open(sessionID, nonceB64, cipherB64 string) (string, error) {
	sharedKey, err := s.sharedKey(sessionID)
	if err != nil {
		return "", err
	}

	rawNonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(rawNonce) != 24 {
		return "", fmt.Errorf("invalid nonce")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext")
	}

	var nonce [24]byte
	copy(nonce[:], rawNonce)
	plaintext, ok := box.OpenAfterPrecomputation(nil, ciphertext, &nonce, sharedKey)
	if !ok {
		return "", fmt.Errorf("failed to open sealed payload")
	}
	return string(plaintext), nil
}

// Seal encrypts a payload for a session, returning base64 nonce and
// ciphertext.
func (s *Service) Seal(sessionID, plaintext string) (string, string, error) {
	sharedKey, err := s.sharedKey(sessionID)
	if err != nil {
		return "", "", err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := box.SealAfterPrecomputation(nil, []byte(plaintext), &nonce, sharedKey)
	return base64.StdEncoding.EncodeToString(nonce[:]),
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// sharedKey copies the session's precomputed key under the lock so a
// concurrent HandleClientKey cannot race the read.
func (s *Service) sharedKey(sessionID string) (*[32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.sessions[sessionID]
	if !ok || !keys.ready {
		return nil, ErrNotReady
	}
	return keys.sharedKey, nil
}

// Downgrade records a fall back to plaintext for a session. The event
// makes the degradation visible to the widget instead of silent.
func (s *Service) Downgrade(sessionID, reason string) {
	s.mu.Lock()
	_, existed := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !existed {
		return
	}

	s.logger.Warn("Encryption downgraded to plaintext",
		String("session_id", sessionID),
		String("reason", reason))

	s.broadcaster.SendToSession(sessionID, &websocket.Message{
		Type: chat.EventEncryptionDowngraded,
		Data: map[string]any{"sessionId": sessionID, "reason": reason},
	})
}

// Drop forgets a session's keys
func (s *Service) Drop(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Field helpers from the logger package
var (
	String = logger.String
	Error  = logger.Error
)

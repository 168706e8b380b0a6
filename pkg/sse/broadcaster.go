package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/api/jsonrpcx"
	"github.com/danghamo/isoboard/pkg/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	staleAfter        = 2 * heartbeatInterval
)

// SSEClient represents a connected SSE client
type SSEClient struct {
	ID        string
	SessionID string
	Writer    http.ResponseWriter
	Flusher   http.Flusher
	Done      chan bool
	LastSeen  time.Time
	mutex     sync.Mutex // Protects concurrent writes to this client
}

// SessionMessage represents a message targeted to one session
type SessionMessage struct {
	SessionID    string
	Notification jsonrpcx.JsonRpcNotification
}

// InitialSync produces the notification sent to a client right after it connects
type InitialSync func() (jsonrpcx.JsonRpcNotification, bool)

// SSEBroadcaster manages SSE connections and broadcasts
type SSEBroadcaster struct {
	logger           *logger.Logger
	clients          map[string]*SSEClient
	sessionClients   map[string][]*SSEClient
	mutex            sync.RWMutex
	broadcast        chan []byte
	sessionBroadcast chan SessionMessage
	cleanup          *time.Ticker
	shutdown         chan struct{}
	closeOnce        sync.Once
	initialSync      InitialSync
}

// NewSSEBroadcaster creates a new SSE broadcaster
func NewSSEBroadcaster(logger *logger.Logger) *SSEBroadcaster {
	broadcaster := &SSEBroadcaster{
		logger:           logger.WithComponent("sse-broadcaster"),
		clients:          make(map[string]*SSEClient),
		sessionClients:   make(map[string][]*SSEClient),
		broadcast:        make(chan []byte, 1000),
		sessionBroadcast: make(chan SessionMessage, 1000),
		cleanup:          time.NewTicker(heartbeatInterval),
		shutdown:         make(chan struct{}),
	}

	// Start background goroutines
	go broadcaster.broadcastLoop()
	go broadcaster.sessionBroadcastLoop()
	go broadcaster.cleanupLoop()

	return broadcaster
}

// SetInitialSync installs the snapshot sent to newly connected clients
func (b *SSEBroadcaster) SetInitialSync(sync InitialSync) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.initialSync = sync
}

// AddClient adds a new SSE client
func (b *SSEBroadcaster) AddClient(client *SSEClient) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.clients[client.ID] = client
	b.sessionClients[client.SessionID] = append(b.sessionClients[client.SessionID], client)

	b.logger.Debug("SSE client connected",
		zap.String("clientId", client.ID),
		zap.String("sessionId", client.SessionID))
}

// RemoveClient removes an SSE client
func (b *SSEBroadcaster) RemoveClient(clientID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.removeLocked(clientID)
}

func (b *SSEBroadcaster) removeLocked(clientID string) {
	client, exists := b.clients[clientID]
	if !exists {
		return
	}

	// Safely close the Done channel
	select {
	case <-client.Done:
	default:
		close(client.Done)
	}
	delete(b.clients, clientID)

	sessionClients := b.sessionClients[client.SessionID]
	for i, sc := range sessionClients {
		if sc.ID == clientID {
			sessionClients = append(sessionClients[:i], sessionClients[i+1:]...)
			break
		}
	}
	if len(sessionClients) == 0 {
		delete(b.sessionClients, client.SessionID)
	} else {
		b.sessionClients[client.SessionID] = sessionClients
	}

	b.logger.Debug("SSE client disconnected",
		zap.String("clientId", clientID),
		zap.String("sessionId", client.SessionID))
}

// BroadcastToAll sends a JSON-RPC notification to all connected clients
func (b *SSEBroadcaster) BroadcastToAll(notification jsonrpcx.JsonRpcNotification) {
	data, err := json.Marshal(notification)
	if err != nil {
		b.logger.Error("Failed to marshal JSON-RPC notification", zap.Error(err))
		return
	}

	select {
	case <-b.shutdown:
	case b.broadcast <- data:
	default:
		b.logger.Warn("Broadcast channel full, dropping message",
			zap.String("method", notification.Method))
	}
}

// BroadcastToSessions sends a JSON-RPC notification to the sessions connected to this server
func (b *SSEBroadcaster) BroadcastToSessions(sessionIDs []string, notification jsonrpcx.JsonRpcNotification) {
	if len(sessionIDs) == 0 {
		return
	}

	b.mutex.RLock()
	local := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if len(b.sessionClients[id]) > 0 {
			local = append(local, id)
		}
	}
	b.mutex.RUnlock()

	if len(local) == 0 {
		b.logger.Debug("No target sessions connected", zap.Strings("sessions", sessionIDs))
		return
	}

	for _, id := range local {
		select {
		case <-b.shutdown:
			return
		case b.sessionBroadcast <- SessionMessage{SessionID: id, Notification: notification}:
		default:
			b.logger.Warn("Session broadcast channel full, dropping message", zap.String("sessionId", id))
		}
	}
}

// HasSession reports whether a session has at least one live client
func (b *SSEBroadcaster) HasSession(sessionID string) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.sessionClients[sessionID]) > 0
}

// sessionBroadcastLoop delivers session-targeted messages
func (b *SSEBroadcaster) sessionBroadcastLoop() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in sessionBroadcastLoop", zap.Any("panic", r))
			go b.sessionBroadcastLoop()
		}
	}()

	for {
		select {
		case <-b.shutdown:
			b.logger.Debug("Session broadcast loop shutting down")
			return
		case msg := <-b.sessionBroadcast:
			b.mutex.RLock()
			clients := append([]*SSEClient(nil), b.sessionClients[msg.SessionID]...)
			b.mutex.RUnlock()

			if len(clients) == 0 {
				continue
			}

			data, err := json.Marshal(msg.Notification)
			if err != nil {
				b.logger.Error("Failed to marshal session notification", zap.Error(err))
				continue
			}
			b.deliver(clients, data)
		}
	}
}

// broadcastLoop handles broadcasting messages to all connected clients
func (b *SSEBroadcaster) broadcastLoop() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in broadcastLoop", zap.Any("panic", r))
			go b.broadcastLoop()
		}
	}()

	for {
		select {
		case <-b.shutdown:
			b.logger.Debug("Broadcast loop shutting down")
			return
		case data := <-b.broadcast:
			b.mutex.RLock()
			clients := make([]*SSEClient, 0, len(b.clients))
			for _, client := range b.clients {
				clients = append(clients, client)
			}
			b.mutex.RUnlock()

			b.deliver(clients, data)
		}
	}
}

// deliver writes data to every client and drops the ones that fail
func (b *SSEBroadcaster) deliver(clients []*SSEClient, data []byte) {
	for _, client := range clients {
		select {
		case <-client.Done:
			b.RemoveClient(client.ID)
		default:
			if err := b.sendToClient(client, data); err != nil {
				b.logger.Warn("Failed to send to client",
					zap.String("clientId", client.ID),
					zap.Error(err))
				b.RemoveClient(client.ID)
			}
		}
	}
}

// sendToClient sends data to a specific SSE client
func (b *SSEBroadcaster) sendToClient(client *SSEClient, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in sendToClient",
				zap.Any("panic", r),
				zap.String("clientId", client.ID))
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	if client.Writer == nil || client.Flusher == nil {
		return fmt.Errorf("client %s has no writer", client.ID)
	}

	// Use client-specific mutex to prevent concurrent writes
	client.mutex.Lock()
	defer client.mutex.Unlock()

	select {
	case <-client.Done:
		return fmt.Errorf("client connection closed")
	default:
	}

	// Single write per event to reduce chunking issues
	frame := fmt.Sprintf("data: %s\n\n", data)
	n, err := client.Writer.Write([]byte(frame))
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: wrote %d/%d bytes", n, len(frame))
	}

	client.Flusher.Flush()
	client.LastSeen = time.Now()
	return nil
}

// cleanupLoop removes stale connections
func (b *SSEBroadcaster) cleanupLoop() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in cleanupLoop", zap.Any("panic", r))
			go b.cleanupLoop()
		}
	}()

	for {
		select {
		case <-b.shutdown:
			b.logger.Debug("Cleanup loop shutting down")
			return
		case <-b.cleanup.C:
			b.removeStale(time.Now())
		}
	}
}

func (b *SSEBroadcaster) removeStale(now time.Time) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for clientID, client := range b.clients {
		client.mutex.Lock()
		lastSeen := client.LastSeen
		client.mutex.Unlock()

		if now.Sub(lastSeen) > staleAfter {
			b.logger.Debug("Removing stale SSE client", zap.String("clientId", clientID))
			b.removeLocked(clientID)
		}
	}
}

// GetClientCount returns the number of connected clients
func (b *SSEBroadcaster) GetClientCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.clients)
}

// Close shuts down the broadcaster. It is safe to call more than once.
func (b *SSEBroadcaster) Close() {
	b.closeOnce.Do(func() {
		b.logger.Debug("Shutting down SSE broadcaster")

		// Signal all goroutines to stop
		close(b.shutdown)
		b.cleanup.Stop()

		b.mutex.Lock()
		defer b.mutex.Unlock()

		for clientID := range b.clients {
			b.removeLocked(clientID)
		}
	})
}

// HandleSSE streams board notifications to one client.
// The optional "session" query parameter groups connections of one UI session.
func (b *SSEBroadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		b.logger.Error("SSE: Client does not support flusher interface")
		http.Error(w, "Server-Sent Events not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	// The stream outlives the server write timeout; heartbeats detect dead peers
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		b.logger.Debug("SSE: could not clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	client := &SSEClient{
		ID:        fmt.Sprintf("%s-%d", sessionID, time.Now().UnixNano()),
		SessionID: sessionID,
		Writer:    w,
		Flusher:   flusher,
		Done:      make(chan bool),
		LastSeen:  time.Now(),
	}

	hello, _ := json.Marshal(map[string]string{
		"type":       "connected",
		"client_id":  client.ID,
		"session_id": sessionID,
	})
	if err := b.sendToClient(client, hello); err != nil {
		b.logger.Warn("SSE: initial write failed", zap.Error(err))
		return
	}

	b.mutex.RLock()
	initialSync := b.initialSync
	b.mutex.RUnlock()
	if initialSync != nil {
		if notification, ok := initialSync(); ok {
			if data, err := json.Marshal(notification); err == nil {
				_ = b.sendToClient(client, data)
			}
		}
	}

	b.AddClient(client)
	defer b.RemoveClient(client.ID)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-client.Done:
			return
		case <-r.Context().Done():
			b.logger.Debug("SSE request context cancelled", zap.String("clientId", client.ID))
			return
		case <-b.shutdown:
			return
		case <-heartbeat.C:
			beat := fmt.Sprintf(`{"type":"heartbeat","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
			if err := b.sendToClient(client, []byte(beat)); err != nil {
				b.logger.Warn("Failed to send heartbeat",
					zap.String("clientId", client.ID),
					zap.Error(err))
				return
			}
		}
	}
}

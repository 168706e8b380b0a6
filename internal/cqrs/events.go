package cqrs

import (
	"time"

	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/internal/domain/spatial"
)

// BoardChangedEvent is published after every accepted board mutation
type BoardChangedEvent struct {
	Version   uint64             `json:"version"`
	Tiles     []board.PlacedTile `json:"tiles"`
	Timestamp time.Time          `json:"timestamp"`
	RequestID string             `json:"request_id"`
}

// TileDroppedEvent is published when a drag session ends with a drop attempt
type TileDroppedEvent struct {
	SessionID string       `json:"session_id"`
	TileID    board.TileID `json:"tile_id"`
	From      *shared.Cell `json:"from,omitempty"` // nil for tiles dragged in from off the board
	To        *shared.Cell `json:"to,omitempty"`   // nil when the pointer resolved to no cell
	Accepted  bool         `json:"accepted"`
	Timestamp time.Time    `json:"timestamp"`
	RequestID string       `json:"request_id"`
}

// BoardStatsEvent carries index diagnostics, published when a dirty board is flushed
type BoardStatsEvent struct {
	Version   uint64        `json:"version"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Stats     spatial.Stats `json:"stats"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"request_id"`
}

// SSENotificationEvent represents an event to send SSE notifications
type SSENotificationEvent struct {
	Type           string      `json:"type"`
	TargetSessions []string    `json:"target_sessions,omitempty"` // empty for broadcast
	Method         string      `json:"method"`
	Params         interface{} `json:"params"`
	Timestamp      time.Time   `json:"timestamp"`
	RequestID      string      `json:"request_id"`
}

// Event types for different notification patterns
const (
	SSENotificationTypeBroadcast = "broadcast" // Send to all sessions
	SSENotificationTypeSessions  = "sessions"  // Send to specific list of sessions
)

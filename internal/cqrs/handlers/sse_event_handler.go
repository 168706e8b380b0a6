package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/api/jsonrpcx"
	cqrsevents "github.com/danghamo/isoboard/internal/cqrs"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/pkg/logger"
)

// Notification methods pushed to SSE clients
const (
	MethodBoardSnapshot = "board.snapshot"
	MethodBoardChanged  = "board.changed"
	MethodBoardStats    = "board.stats"
	MethodTileDropped   = "tile.dropped"
)

// SSEBroadcaster interface for broadcasting SSE messages
type SSEBroadcaster interface {
	BroadcastToSessions(sessionIDs []string, notification jsonrpcx.JsonRpcNotification)
	BroadcastToAll(notification jsonrpcx.JsonRpcNotification)
	HasSession(sessionID string) bool
}

// BoardDocument is the JSON shape clients mirror. Tiles are keyed by "x,y" so
// that a merge patch touches only the cells that changed.
type BoardDocument struct {
	Version uint64                `json:"version"`
	Tiles   map[string]board.Tile `json:"tiles"`
}

// NewBoardDocument builds the client document for a board snapshot
func NewBoardDocument(version uint64, tiles []board.PlacedTile) BoardDocument {
	doc := BoardDocument{Version: version, Tiles: make(map[string]board.Tile, len(tiles))}
	for _, pt := range tiles {
		doc.Tiles[pt.Cell.Key()] = pt.Tile
	}
	return doc
}

// SSEEventHandler handles events and converts them to SSE notifications
type SSEEventHandler struct {
	sseBroadcaster SSEBroadcaster
	logger         *logger.Logger

	mu          sync.Mutex
	lastVersion uint64
	lastDoc     []byte
}

// NewSSEEventHandler creates a new SSE event handler
func NewSSEEventHandler(sseBroadcaster SSEBroadcaster, logger *logger.Logger) *SSEEventHandler {
	return &SSEEventHandler{
		sseBroadcaster: sseBroadcaster,
		logger:         logger.WithComponent("sse-event-handler"),
		lastDoc:        []byte(`{}`),
	}
}

// HandleBoardChangedEvent diffs the new snapshot against the last one seen and
// broadcasts the JSON merge patch. Stale or duplicate versions are dropped.
func (h *SSEEventHandler) HandleBoardChangedEvent(ctx context.Context, event *cqrsevents.BoardChangedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if event.Version <= h.lastVersion {
		h.logger.Debug("Skipping stale board change",
			zap.Uint64("version", event.Version),
			zap.Uint64("last_version", h.lastVersion))
		return nil
	}

	doc, err := json.Marshal(NewBoardDocument(event.Version, event.Tiles))
	if err != nil {
		return fmt.Errorf("marshal board document: %w", err)
	}
	patch, err := jsonpatch.CreateMergePatch(h.lastDoc, doc)
	if err != nil {
		return fmt.Errorf("create merge patch: %w", err)
	}

	notification := jsonrpcx.NewNotification(MethodBoardChanged, map[string]interface{}{
		"base_version": h.lastVersion,
		"version":      event.Version,
		"patch":        json.RawMessage(patch),
		"timestamp":    event.Timestamp.Format(time.RFC3339Nano),
		"request_id":   event.RequestID,
	})
	h.sseBroadcaster.BroadcastToAll(notification)

	h.lastVersion, h.lastDoc = event.Version, doc

	h.logger.Debug("Board change broadcast",
		zap.Uint64("version", event.Version),
		zap.Int("patch_bytes", len(patch)),
		zap.String("requestId", event.RequestID))
	return nil
}

// HandleTileDroppedEvent tells every client about a finished drag
func (h *SSEEventHandler) HandleTileDroppedEvent(ctx context.Context, event *cqrsevents.TileDroppedEvent) error {
	h.logger.Debug("Handling tile dropped event",
		zap.String("sessionId", event.SessionID),
		zap.Bool("accepted", event.Accepted),
		zap.String("requestId", event.RequestID))

	h.sseBroadcaster.BroadcastToAll(jsonrpcx.NewNotification(MethodTileDropped, map[string]interface{}{
		"session_id": event.SessionID,
		"tile_id":    event.TileID,
		"from":       event.From,
		"to":         event.To,
		"accepted":   event.Accepted,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
	}))
	return nil
}

// HandleBoardStatsEvent forwards index diagnostics
func (h *SSEEventHandler) HandleBoardStatsEvent(ctx context.Context, event *cqrsevents.BoardStatsEvent) error {
	h.sseBroadcaster.BroadcastToAll(jsonrpcx.NewNotification(MethodBoardStats, map[string]interface{}{
		"version":   event.Version,
		"width":     event.Width,
		"height":    event.Height,
		"stats":     event.Stats,
		"timestamp": event.Timestamp.Format(time.RFC3339Nano),
	}))
	return nil
}

// HandleSSENotificationEvent delivers ad-hoc notifications to all or some sessions
func (h *SSEEventHandler) HandleSSENotificationEvent(ctx context.Context, event *cqrsevents.SSENotificationEvent) error {
	h.logger.Debug("Handling SSE notification event",
		zap.String("type", event.Type),
		zap.Strings("targetSessions", event.TargetSessions),
		zap.String("method", event.Method),
		zap.String("requestId", event.RequestID))

	notification := jsonrpcx.NewNotification(event.Method, event.Params)

	switch event.Type {
	case cqrsevents.SSENotificationTypeSessions:
		live, gone := lo.FilterReject(event.TargetSessions, func(id string, _ int) bool {
			return h.sseBroadcaster.HasSession(id)
		})
		if len(gone) > 0 {
			h.logger.Debug("Skipping sessions without a stream",
				zap.Strings("sessions", gone),
				zap.String("method", event.Method))
		}
		if len(live) > 0 {
			h.sseBroadcaster.BroadcastToSessions(live, notification)
		}
	case cqrsevents.SSENotificationTypeBroadcast:
		h.sseBroadcaster.BroadcastToAll(notification)
	default:
		h.logger.Warn("Unknown SSE notification type", zap.String("type", event.Type))
	}
	return nil
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/app/service"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/drag"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/internal/domain/viewport"
	"github.com/danghamo/isoboard/pkg/logger"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 16 * 1024

	// MethodDragResult is pushed over SSE to the session that finished a drag
	MethodDragResult = "drag.result"
)

// Drag message types
const (
	DragStart   = "start"
	DragUpdate  = "update"
	DragEnd     = "end"
	DragCancel  = "cancel"
	DragOffsets = "offsets"
	DragCamera  = "camera"

	ReplyState = "state"
	ReplyDrop  = "drop"
	ReplyRange = "range"
	ReplyError = "error"
)

// SessionNotifier pushes a notification to specific SSE sessions.
// cqrs.SSEBroadcastHelper satisfies it.
type SessionNotifier interface {
	BroadcastToSessions(ctx context.Context, sessionIDs []string, method string, params interface{}) error
}

// DragMessage is one client -> server websocket message.
// X and Y are screen coordinates; for offsets they are the render offsets.
type DragMessage struct {
	Type   string           `json:"type"`
	X      float64          `json:"x"`
	Y      float64          `json:"y"`
	Tile   *board.Tile      `json:"tile,omitempty"`
	Camera *viewport.Camera `json:"camera,omitempty"`
	Width  float64          `json:"width,omitempty"`
	Height float64          `json:"height,omitempty"`
}

// DragReply is one server -> client websocket message
type DragReply struct {
	Type  string              `json:"type"`
	State *drag.State         `json:"state,omitempty"`
	Drop  *service.DropResult `json:"drop,omitempty"`
	View  *service.View       `json:"view,omitempty"`
	Error string              `json:"error,omitempty"`
}

// DragHandler serves the drag/drop websocket. Each connection owns one drag
// session and one throttled viewport session.
type DragHandler struct {
	logger   *logger.Logger
	svc      *service.BoardService
	notifier SessionNotifier
	upgrader websocket.Upgrader
}

// NewDragHandler creates a drag handler. notifier may be nil.
func NewDragHandler(logger *logger.Logger, svc *service.BoardService, notifier SessionNotifier) *DragHandler {
	return &DragHandler{
		logger:   logger.WithComponent("drag-handler"),
		svc:      svc,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origins are filtered by the CORS middleware
				return true
			},
		},
	}
}

// dragConn is the per-connection state
type dragConn struct {
	ws       *websocket.Conn
	drag     *service.DragSession
	viewport *service.ViewportSession
}

// HandleDrag upgrades GET /api/v1/stream/drag?session=<id> to a websocket
func (h *DragHandler) HandleDrag(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade drag connection", zap.Error(err))
		return
	}
	defer ws.Close()

	conn := &dragConn{
		ws:       ws,
		drag:     h.svc.NewDragSession(sessionID),
		viewport: h.svc.NewViewportSession(),
	}
	defer conn.drag.Cancel()

	l := h.logger.WithSession(sessionID)
	l.Debug("Drag connection opened")

	ws.SetReadLimit(maxMessageSize)
	for {
		var msg DragMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.Warn("Drag connection read failed", zap.Error(err))
			}
			break
		}

		reply, ok := h.handle(r.Context(), conn, msg)
		if !ok {
			continue
		}

		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(reply); err != nil {
			l.Warn("Drag connection write failed", zap.Error(err))
			break
		}
	}

	l.Debug("Drag connection closed")
}

// handle applies one message. ok is false when nothing needs to be sent back.
func (h *DragHandler) handle(ctx context.Context, conn *dragConn, msg DragMessage) (DragReply, bool) {
	p := shared.NewPoint(msg.X, msg.Y)

	switch msg.Type {
	case DragStart:
		if msg.Tile != nil {
			conn.drag.Start(*msg.Tile, p)
		} else if !conn.drag.PickUp(p) {
			return errorReply("no tile under pointer"), true
		}
		return stateReply(conn.drag.State()), true

	case DragUpdate:
		return stateReply(conn.drag.Update(p)), true

	case DragEnd:
		result := conn.drag.End(p)
		h.notify(ctx, conn.drag.ID(), result)
		return DragReply{Type: ReplyDrop, Drop: &result}, true

	case DragCancel:
		conn.drag.Cancel()
		return stateReply(conn.drag.State()), true

	case DragOffsets:
		conn.drag.SetOffsets(msg.X, msg.Y)
		return stateReply(conn.drag.State()), true

	case DragCamera:
		if msg.Camera == nil || msg.Camera.Zoom <= 0 || msg.Width <= 0 || msg.Height <= 0 {
			return errorReply("camera, width and height are required"), true
		}
		view, changed := conn.viewport.Update(*msg.Camera, msg.Width, msg.Height)
		if !changed {
			return DragReply{}, false
		}
		return DragReply{Type: ReplyRange, View: &view}, true

	default:
		return errorReply("unknown message type " + msg.Type), true
	}
}

func (h *DragHandler) notify(ctx context.Context, sessionID string, result service.DropResult) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.BroadcastToSessions(ctx, []string{sessionID}, MethodDragResult, result); err != nil {
		h.logger.Warn("Failed to notify drag result",
			zap.String("sessionId", sessionID),
			zap.Error(err))
	}
}

func stateReply(st drag.State) DragReply {
	return DragReply{Type: ReplyState, State: &st}
}

func errorReply(msg string) DragReply {
	return DragReply{Type: ReplyError, Error: msg}
}

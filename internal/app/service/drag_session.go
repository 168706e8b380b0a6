package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cqrscommands "github.com/danghamo/isoboard/internal/cqrs"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/drag"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/pkg/logger"
)

// DropResult describes the outcome of DragSession.End
type DropResult struct {
	Accepted bool         `json:"accepted"`
	TileID   board.TileID `json:"tile_id,omitempty"`
	// Target is the cell the pointer snapped to, nil when it resolved to none
	Target *shared.Cell `json:"target,omitempty"`
}

// DragSession is the drag state of one UI connection. Drops are vetted by
// the service validator and committed in the same critical section.
type DragSession struct {
	id        string
	svc       *BoardService
	ctrl      *drag.Controller
	fromBoard bool
	logger    *logger.Logger
}

// NewDragSession creates an idle drag session. An empty id gets a generated one.
func (s *BoardService) NewDragSession(id string) *DragSession {
	if id == "" {
		id = uuid.New().String()
	}

	w, h := s.Size()
	return &DragSession{
		id:     id,
		svc:    s,
		ctrl:   drag.New(s.board, s.proj, w, h, drag.WithChecker(s.validator.Gate(s.board))),
		logger: s.logger.WithSession(id),
	}
}

// ID returns the session identifier
func (d *DragSession) ID() string {
	return d.id
}

// SetOffsets updates the render offsets used to resolve pointer positions
func (d *DragSession) SetOffsets(x, y float64) {
	d.svc.mu.Lock()
	defer d.svc.mu.Unlock()
	d.ctrl.SetOffsets(x, y)
}

// PickUp starts dragging the tile under screen point p. It reports false when
// the point is over no tile.
func (d *DragSession) PickUp(p shared.Point) bool {
	d.svc.mu.Lock()
	defer d.svc.mu.Unlock()

	cell, ok := d.svc.proj.SnapToNearestCell(p.Sub(d.ctrl.Offsets()), d.svc.board.Width(), d.svc.board.Height())
	if !ok {
		return false
	}
	tile, ok := d.svc.board.TileAt(cell.X, cell.Y)
	if !ok {
		return false
	}

	d.fromBoard = true
	d.ctrl.Start(tile, cell, p)
	return true
}

// Start begins dragging tile. Tiles already on the board keep their cell as origin;
// other tiles are new and get an ID if they lack one.
func (d *DragSession) Start(tile board.Tile, p shared.Point) board.Tile {
	if tile.ID.IsEmpty() {
		tile.ID = shared.NewID()
	}

	d.svc.mu.Lock()
	defer d.svc.mu.Unlock()

	origin, onBoard := d.svc.board.CellOf(tile.ID)
	d.fromBoard = onBoard
	d.ctrl.Start(tile, origin, p)
	return tile
}

// Update moves the live pointer and returns the new state
func (d *DragSession) Update(p shared.Point) drag.State {
	d.svc.mu.Lock()
	defer d.svc.mu.Unlock()

	d.ctrl.Update(p)
	return d.ctrl.State()
}

// End drops the dragged tile at p. The session is idle afterwards.
func (d *DragSession) End(p shared.Point) DropResult {
	d.svc.mu.Lock()
	defer d.svc.mu.Unlock()

	st := d.ctrl.State()
	if !st.Dragging() {
		return DropResult{}
	}

	result := DropResult{TileID: st.Tile.ID}
	if cell, ok := d.svc.proj.SnapToNearestCell(p.Sub(d.ctrl.Offsets()), d.svc.board.Width(), d.svc.board.Height()); ok {
		result.Target = &cell
	}
	result.Accepted = d.ctrl.End(p)

	d.publishDrop(st, result)
	return result
}

// Cancel abandons the current drag, if any
func (d *DragSession) Cancel() {
	d.svc.mu.Lock()
	defer d.svc.mu.Unlock()
	d.ctrl.Cancel()
}

// State returns a snapshot of the drag state
func (d *DragSession) State() drag.State {
	d.svc.mu.Lock()
	defer d.svc.mu.Unlock()
	return d.ctrl.State()
}

func (d *DragSession) publishDrop(st drag.State, result DropResult) {
	d.logger.Debug("Tile dropped",
		zap.String("tile_id", st.Tile.ID.String()),
		zap.Bool("accepted", result.Accepted))

	if d.svc.publisher == nil {
		return
	}

	event := &cqrscommands.TileDroppedEvent{
		SessionID: d.id,
		TileID:    st.Tile.ID,
		To:        result.Target,
		Accepted:  result.Accepted,
		Timestamp: time.Now(),
		RequestID: uuid.New().String(),
	}
	if d.fromBoard {
		from := st.Origin
		event.From = &from
	}
	if err := d.svc.publisher.Publish(context.Background(), event); err != nil {
		d.logger.Error("Failed to publish drop", zap.Error(err))
	}
}

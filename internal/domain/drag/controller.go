// Package drag tracks a single in-progress tile drag and commits it to the
// board on drop.
package drag

import (
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/iso"
	"github.com/danghamo/isoboard/internal/domain/placement"
	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Phase is the drag state tag
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Placer commits a drop. *board.Board satisfies it.
type Placer interface {
	PlaceTile(x, y int, tile board.Tile) bool
}

// Checker vets a drop before it is committed
type Checker interface {
	Check(tile board.Tile, target shared.Cell) placement.Verdict
}

// State is a read-only snapshot of the controller.
// Tile, Origin, Pointer and the resolved cell are meaningful only while dragging.
type State struct {
	Phase   Phase        `json:"phase"`
	Tile    board.Tile   `json:"tile"`
	Origin  shared.Cell  `json:"origin"`
	Pointer shared.Point `json:"pointer"`

	// Cell is the last cell the pointer snapped to; HasCell is false while over no cell
	Cell    shared.Cell `json:"cell"`
	HasCell bool        `json:"has_cell"`
	// Blocked is set when the checker refuses Cell
	Blocked bool `json:"blocked"`
}

// Dragging reports whether a drag is in progress
func (s State) Dragging() bool {
	return s.Phase == PhaseDragging
}

// Option configures a Controller
type Option func(*Controller)

// WithChecker gates every drop through c
func WithChecker(c Checker) Option {
	return func(ctrl *Controller) {
		ctrl.checker = c
	}
}

// Controller is the drag state machine: idle -> dragging -> idle.
// It is not safe for concurrent use.
type Controller struct {
	placer  Placer
	checker Checker
	proj    iso.Projection

	boardWidth  int
	boardHeight int

	offset shared.Point
	state  State
}

// New creates an idle controller committing drops to placer
func New(placer Placer, proj iso.Projection, boardWidth, boardHeight int, opts ...Option) *Controller {
	c := &Controller{
		placer:      placer,
		proj:        proj,
		boardWidth:  boardWidth,
		boardHeight: boardHeight,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetOffsets sets the board-local to screen-local translation. The render
// collaborator must call it whenever the camera transform changes.
func (c *Controller) SetOffsets(x, y float64) {
	c.offset = shared.NewPoint(x, y)
}

// Offsets returns the current render offsets
func (c *Controller) Offsets() shared.Point {
	return c.offset
}

// Start begins dragging tile picked up from origin at screen point p.
// Starting while already dragging abandons the previous drag.
func (c *Controller) Start(tile board.Tile, origin shared.Cell, p shared.Point) {
	c.state = State{
		Phase:  PhaseDragging,
		Tile:   tile,
		Origin: origin,
	}
	c.move(p)
}

// Update moves the live pointer. It is a no-op while idle.
func (c *Controller) Update(p shared.Point) {
	if c.state.Phase != PhaseDragging {
		return
	}
	c.move(p)
}

// End drops the tile at screen point p and reports whether the board accepted it.
// The controller is idle afterwards whatever the outcome.
func (c *Controller) End(p shared.Point) bool {
	if c.state.Phase != PhaseDragging {
		return false
	}
	defer c.reset()

	tile := c.state.Tile
	cell, ok := c.resolve(p)
	if !ok {
		return false
	}
	if c.checker != nil && c.checker.Check(tile, cell).Blocked() {
		return false
	}
	return c.placer.PlaceTile(cell.X, cell.Y, tile)
}

// Cancel abandons the drag without touching the board. It is idempotent.
func (c *Controller) Cancel() {
	c.reset()
}

// State returns a snapshot of the controller
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) move(p shared.Point) {
	c.state.Pointer = p
	c.state.Cell, c.state.HasCell = c.resolve(p)
	c.state.Blocked = false
	if c.state.HasCell && c.checker != nil {
		c.state.Blocked = c.checker.Check(c.state.Tile, c.state.Cell).Blocked()
	}
}

// resolve snaps a screen point to a board cell after removing the render offsets
func (c *Controller) resolve(p shared.Point) (shared.Cell, bool) {
	return c.proj.SnapToNearestCell(p.Sub(c.offset), c.boardWidth, c.boardHeight)
}

func (c *Controller) reset() {
	c.state = State{Phase: PhaseIdle}
}

// Package board owns the authoritative set of placed tiles.
package board

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/internal/domain/spatial"
	"github.com/danghamo/isoboard/pkg/logger"
)

// Config holds the fixed dimensions of a board
type Config struct {
	Width     int `mapstructure:"width" json:"width"`
	Height    int `mapstructure:"height" json:"height"`
	ChunkSize int `mapstructure:"chunk_size" json:"chunk_size"`
}

// Listener receives the full tile list after every accepted mutation
type Listener func(tiles []PlacedTile)

// ListenerID is returned by OnChange and accepted by OffChange
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// Option configures a Board
type Option func(*Board)

// WithLogger sets the logger used to report faulty listeners
func WithLogger(l *logger.Logger) Option {
	return func(b *Board) {
		b.logger = l.WithComponent("board")
	}
}

// Board is a bounded grid where each cell holds at most one tile and each tile
// occupies at most one cell.
//
// Board is not safe for concurrent use; one logical owner drives it.
type Board struct {
	index     *spatial.Index[Tile]
	positions map[TileID]shared.Cell

	listeners []registration
	nextID    ListenerID

	version uint64
	dirty   bool

	logger *logger.Logger
}

// New creates an empty board
func New(cfg Config, opts ...Option) (*Board, error) {
	index, err := spatial.New[Tile](cfg.Width, cfg.Height, cfg.ChunkSize)
	if err != nil {
		return nil, err
	}

	b := &Board{
		index:     index,
		positions: make(map[TileID]shared.Cell),
		logger:    logger.GetGlobalLogger().WithComponent("board"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Width returns the number of columns
func (b *Board) Width() int { return b.index.Width() }

// Height returns the number of rows
func (b *Board) Height() int { return b.index.Height() }

// InBounds reports whether (x, y) is a cell of the board
func (b *Board) InBounds(x, y int) bool { return b.index.InBounds(x, y) }

// PlaceTile puts tile at (x, y) and reports whether the board changed.
//
// Out-of-bounds targets are refused without notification. A tile whose ID is
// already on the board is moved, freeing its old cell; a different tile
// occupying the target is evicted.
func (b *Board) PlaceTile(x, y int, tile Tile) bool {
	if !b.index.InBounds(x, y) {
		return false
	}

	target := shared.NewCell(x, y)
	if from, ok := b.positions[tile.ID]; ok && from != target {
		b.index.Remove(from.X, from.Y)
	}
	if occupant, ok := b.index.Get(x, y); ok && occupant.ID != tile.ID {
		delete(b.positions, occupant.ID)
	}

	b.index.Insert(x, y, tile)
	b.positions[tile.ID] = target
	b.changed()
	return true
}

// RemoveTile empties (x, y) and reports whether a tile was removed
func (b *Board) RemoveTile(x, y int) bool {
	occupant, ok := b.index.Get(x, y)
	if !ok {
		return false
	}

	b.index.Remove(x, y)
	delete(b.positions, occupant.ID)
	b.changed()
	return true
}

// TileAt returns the tile at (x, y)
func (b *Board) TileAt(x, y int) (Tile, bool) {
	return b.index.Get(x, y)
}

// CellOf returns the cell a tile currently occupies
func (b *Board) CellOf(id TileID) (shared.Cell, bool) {
	c, ok := b.positions[id]
	return c, ok
}

// VisibleTiles returns the tiles inside an inclusive cell region
func (b *Board) VisibleTiles(r shared.Region) []PlacedTile {
	return toPlaced(b.index.QueryRegion(r))
}

// TilesNear returns the tiles within euclidean grid distance radius of c
func (b *Board) TilesNear(c shared.Cell, radius float64) []PlacedTile {
	return toPlaced(b.index.QueryRadius(c.X, c.Y, radius))
}

// AllTiles returns every placed tile.
//
// It walks the whole index and defeats the point of spatial indexing on large
// boards; use it for small boards and debugging only.
func (b *Board) AllTiles() []PlacedTile {
	out := make([]PlacedTile, 0, b.index.Len())
	b.index.ForEach(func(e spatial.Entry[Tile]) bool {
		out = append(out, PlacedTile{Cell: e.Cell(), Tile: e.Value})
		return true
	})
	return out
}

// Len returns the number of placed tiles
func (b *Board) Len() int {
	return b.index.Len()
}

// Clear removes every tile. Listeners are notified only if the board was not empty.
func (b *Board) Clear() {
	if b.index.Len() == 0 {
		return
	}
	b.index.Clear()
	b.positions = make(map[TileID]shared.Cell)
	b.changed()
}

// Stats reports index diagnostics
func (b *Board) Stats() spatial.Stats {
	return b.index.Stats()
}

// OnChange registers a listener. Listeners run synchronously, in registration
// order, after each accepted mutation.
func (b *Board) OnChange(fn Listener) ListenerID {
	b.nextID++
	b.listeners = append(b.listeners, registration{id: b.nextID, fn: fn})
	return b.nextID
}

// OffChange unregisters a listener and reports whether it was registered
func (b *Board) OffChange(id ListenerID) bool {
	for i, reg := range b.listeners {
		if reg.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Version increases by one on every accepted mutation
func (b *Board) Version() uint64 {
	return b.version
}

// Dirty reports whether the board changed since the last ClearDirty
func (b *Board) Dirty() bool {
	return b.dirty
}

// ClearDirty acknowledges pending changes on the pull path
func (b *Board) ClearDirty() {
	b.dirty = false
}

func (b *Board) changed() {
	b.version++
	b.dirty = true

	if len(b.listeners) == 0 {
		return
	}

	snapshot := b.AllTiles()
	// copy so listeners may register or unregister while being notified
	regs := append([]registration(nil), b.listeners...)
	for _, reg := range regs {
		b.notify(reg, snapshot)
	}
}

// notify isolates one listener: a panic is logged and the next listener still runs
func (b *Board) notify(reg registration, snapshot []PlacedTile) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Board listener panicked",
				zap.Uint64("listener_id", uint64(reg.id)),
				zap.Uint64("version", b.version),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	reg.fn(snapshot)
}

func toPlaced(entries []spatial.Entry[Tile]) []PlacedTile {
	if len(entries) == 0 {
		return nil
	}
	out := make([]PlacedTile, len(entries))
	for i, e := range entries {
		out[i] = PlacedTile{Cell: e.Cell(), Tile: e.Value}
	}
	return out
}

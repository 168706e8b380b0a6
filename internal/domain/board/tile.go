package board

import (
	"github.com/danghamo/isoboard/internal/domain/shared"
)

// TileID identifies a tile across moves
type TileID = shared.ID

// Tile is the opaque payload placed on the board. The engine only relies on
// ID; Metadata is handed through untouched for placement rules to interpret.
type Tile struct {
	ID       TileID         `json:"id"`
	Type     string         `json:"type"`
	Color    string         `json:"color,omitempty"`
	Image    string         `json:"image,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTile creates a tile with a fresh ID
func NewTile(tileType, color string) Tile {
	return Tile{
		ID:       shared.NewID(),
		Type:     tileType,
		Color:    color,
		Metadata: make(map[string]any),
	}
}

// PlacedTile is a tile together with the cell it occupies
type PlacedTile struct {
	Cell shared.Cell `json:"cell"`
	Tile Tile        `json:"tile"`
}

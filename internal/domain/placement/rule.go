package placement

import (
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Context is what a rule sees of a candidate placement.
// The tile being placed never appears in Occupant, Nearby or All.
type Context struct {
	Tile   board.Tile
	Target shared.Cell

	// Occupant is the tile currently at Target, if any
	Occupant *board.PlacedTile
	// Nearby holds tiles within the proximity radius, excluding Target itself
	Nearby []board.PlacedTile
	// All holds every tile the validator was given
	All []board.PlacedTile

	BoardWidth  int
	BoardHeight int
}

// Rule is an externally supplied placement rule. A nil Applies matches every placement.
type Rule struct {
	ID       string
	Priority int
	Applies  func(Context) bool
	Evaluate func(Context) Verdict
}

func (r Rule) applies(ctx Context) bool {
	return r.Applies == nil || r.Applies(ctx)
}

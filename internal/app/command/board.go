package command

import (
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Board command types
const (
	TypePlaceTile  = "place"
	TypeRemoveTile = "remove"
	TypeClearBoard = "clear"
)

// PlaceTileCommand places a tile, moving it if it is already on the board
type PlaceTileCommand struct {
	BaseCommand
	Cell shared.Cell `json:"cell"`
	Tile board.Tile  `json:"tile"`
}

// NewPlaceTileCommand creates a new place tile command
func NewPlaceTileCommand(tile board.Tile, cell shared.Cell) PlaceTileCommand {
	return PlaceTileCommand{
		BaseCommand: NewBaseCommand(TypePlaceTile),
		Cell:        cell,
		Tile:        tile,
	}
}

// RemoveTileCommand removes the tile at a cell
type RemoveTileCommand struct {
	BaseCommand
	Cell shared.Cell `json:"cell"`
}

// NewRemoveTileCommand creates a new remove tile command
func NewRemoveTileCommand(cell shared.Cell) RemoveTileCommand {
	return RemoveTileCommand{
		BaseCommand: NewBaseCommand(TypeRemoveTile),
		Cell:        cell,
	}
}

// ClearBoardCommand removes every tile
type ClearBoardCommand struct {
	BaseCommand
}

// NewClearBoardCommand creates a new clear board command
func NewClearBoardCommand() ClearBoardCommand {
	return ClearBoardCommand{BaseCommand: NewBaseCommand(TypeClearBoard)}
}

package placement

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Direction is one of the 8 compass directions on the grid. North is -Y.
type Direction string

const (
	North     Direction = "n"
	NorthEast Direction = "ne"
	East      Direction = "e"
	SouthEast Direction = "se"
	South     Direction = "s"
	SouthWest Direction = "sw"
	West      Direction = "w"
	NorthWest Direction = "nw"
)

// DirectionOf returns the compass direction from one cell to another.
// It returns "" when both cells are equal.
func DirectionOf(from, to shared.Cell) Direction {
	dx, dy := sign(to.X-from.X), sign(to.Y-from.Y)
	switch {
	case dx == 0 && dy < 0:
		return North
	case dx > 0 && dy < 0:
		return NorthEast
	case dx > 0 && dy == 0:
		return East
	case dx > 0 && dy > 0:
		return SouthEast
	case dx == 0 && dy > 0:
		return South
	case dx < 0 && dy > 0:
		return SouthWest
	case dx < 0 && dy == 0:
		return West
	case dx < 0 && dy < 0:
		return NorthWest
	}
	return ""
}

// Neighbor is a tile near a target cell
type Neighbor struct {
	board.PlacedTile
	Distance  float64   `json:"distance"`
	Direction Direction `json:"direction"`
}

// Proximity summarises the tiles around a target cell
type Proximity struct {
	Nearby          []Neighbor         `json:"nearby"`
	Adjacent        []board.PlacedTile `json:"adjacent"`
	TypeCounts      map[string]int     `json:"type_counts"`
	DirectionCounts map[Direction]int  `json:"direction_counts"`
}

// ProximityOf describes the tiles of all that lie within radius of target.
// A tile on target itself is not a neighbor.
func ProximityOf(target shared.Cell, all []board.PlacedTile, radius float64) Proximity {
	nearby := neighbors(target, all, radius)

	return Proximity{
		Nearby: nearby,
		Adjacent: lo.FilterMap(nearby, func(n Neighbor, _ int) (board.PlacedTile, bool) {
			return n.PlacedTile, n.Cell.IsAdjacent(target)
		}),
		TypeCounts: lo.CountValuesBy(nearby, func(n Neighbor) string {
			return n.Tile.Type
		}),
		DirectionCounts: lo.CountValuesBy(nearby, func(n Neighbor) Direction {
			return n.Direction
		}),
	}
}

// neighbors returns tiles within radius of target ordered by distance, then row, then column
func neighbors(target shared.Cell, all []board.PlacedTile, radius float64) []Neighbor {
	r2 := radius * radius
	out := make([]Neighbor, 0)
	for _, pt := range all {
		if pt.Cell == target {
			continue
		}
		d2 := float64(pt.Cell.DistanceSq(target))
		if d2 > r2 {
			continue
		}
		out = append(out, Neighbor{
			PlacedTile: pt,
			Distance:   math.Sqrt(d2),
			Direction:  DirectionOf(target, pt.Cell),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Cell.Y != out[j].Cell.Y {
			return out[i].Cell.Y < out[j].Cell.Y
		}
		return out[i].Cell.X < out[j].Cell.X
	})
	return out
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Package iso implements the isometric diamond projection between grid
// cells and screen pixels.
package iso

import (
	"math"

	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Projection maps grid cells to screen pixels and back.
// A cell renders as a rhombus CellWidth wide and CellHeight tall whose
// center sits at CellToScreen(x, y).
type Projection struct {
	CellWidth  float64 `json:"cell_width"`
	CellHeight float64 `json:"cell_height"`
}

// NewProjection creates a projection for the given cell footprint
func NewProjection(cellWidth, cellHeight float64) (Projection, error) {
	if !(cellWidth > 0) || !(cellHeight > 0) || math.IsInf(cellWidth, 0) || math.IsInf(cellHeight, 0) {
		return Projection{}, shared.NewDomainErrorf(shared.ErrCodeInvalidCellSize,
			"cell size must be positive, got %vx%v", cellWidth, cellHeight)
	}
	return Projection{CellWidth: cellWidth, CellHeight: cellHeight}, nil
}

// CellToScreen projects a (possibly fractional) grid coordinate to screen space.
// No rounding is applied.
func (p Projection) CellToScreen(x, y float64) shared.Point {
	return shared.Point{
		X: (x - y) * p.CellWidth / 2,
		Y: (x + y) * p.CellHeight / 2,
	}
}

// CellCenter returns the screen-space center of an integer cell
func (p Projection) CellCenter(c shared.Cell) shared.Point {
	return p.CellToScreen(float64(c.X), float64(c.Y))
}

// ScreenToCell is the exact inverse of CellToScreen. The result is fractional;
// callers pick their own rounding or snapping policy.
func (p Projection) ScreenToCell(sx, sy float64) (fx, fy float64) {
	u := sx / p.CellWidth
	v := sy / p.CellHeight
	return v + u, v - u
}

// SnapToNearestCell resolves a screen point to the in-bounds cell whose center
// is closest on screen. Only the four integer neighbours of the fractional
// coordinate are considered, and the winner must lie within half the larger
// cell dimension of the point.
func (p Projection) SnapToNearestCell(pt shared.Point, boardWidth, boardHeight int) (shared.Cell, bool) {
	fx, fy := p.ScreenToCell(pt.X, pt.Y)
	if math.IsNaN(fx) || math.IsNaN(fy) || math.IsInf(fx, 0) || math.IsInf(fy, 0) {
		return shared.Cell{}, false
	}

	x0, x1 := int(math.Floor(fx)), int(math.Ceil(fx))
	y0, y1 := int(math.Floor(fy)), int(math.Ceil(fy))
	candidates := [4]shared.Cell{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}}

	var (
		best     shared.Cell
		bestDist = math.Inf(1)
		found    bool
	)
	for i, c := range candidates {
		if duplicateCandidate(candidates[:i], c) || !c.InBounds(boardWidth, boardHeight) {
			continue
		}
		d := p.CellCenter(c).DistanceSq(pt)
		// strict comparison: equidistant candidates keep the earlier one
		if d < bestDist {
			best, bestDist, found = c, d, true
		}
	}
	if !found {
		return shared.Cell{}, false
	}

	limit := math.Max(p.CellWidth, p.CellHeight) / 2
	if bestDist > limit*limit {
		return shared.Cell{}, false
	}
	return best, true
}

// PointInCellDiamond reports whether pt falls inside the rhombus of cell c
// once the cell has been translated by offset.
func (p Projection) PointInCellDiamond(pt shared.Point, c shared.Cell, offset shared.Point) bool {
	center := p.CellCenter(c)
	localX := pt.X - (center.X + offset.X)
	localY := pt.Y - (center.Y + offset.Y)
	return math.Abs(localX)/(p.CellWidth/2)+math.Abs(localY)/(p.CellHeight/2) <= 1
}

func duplicateCandidate(seen []shared.Cell, c shared.Cell) bool {
	for _, s := range seen {
		if s == c {
			return true
		}
	}
	return false
}

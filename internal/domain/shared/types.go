package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// ID represents a unique identifier
type ID string

// NewID generates a new unique ID
func NewID() ID {
	return ID(uuid.New().String())
}

// String returns the string representation of ID
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if ID is empty
func (id ID) IsEmpty() bool {
	return string(id) == ""
}

// Cell is one addressable board location.
// X is the column, Y is the row.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewCell creates a new cell
func NewCell(x, y int) Cell {
	return Cell{X: x, Y: y}
}

// Add returns the cell offset by dx, dy
func (c Cell) Add(dx, dy int) Cell {
	return Cell{X: c.X + dx, Y: c.Y + dy}
}

// DistanceSq returns the squared euclidean grid distance to another cell
func (c Cell) DistanceSq(other Cell) int {
	dx := c.X - other.X
	dy := c.Y - other.Y
	return dx*dx + dy*dy
}

// IsAdjacent reports whether other is one of the 8 neighbours of c
func (c Cell) IsAdjacent(other Cell) bool {
	dx := c.X - other.X
	dy := c.Y - other.Y
	return dx >= -1 && dx <= 1 && dy >= -1 && dy <= 1 && !(dx == 0 && dy == 0)
}

// InBounds reports whether the cell lies inside a width x height board
func (c Cell) InBounds(width, height int) bool {
	return c.X >= 0 && c.X < width && c.Y >= 0 && c.Y < height
}

// String returns string representation of cell
func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Key returns a string key for map indexing and JSON objects
func (c Cell) Key() string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}

// Point is a continuous screen-space position in pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint creates a new point
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Sub returns p - other
func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

// DistanceSq returns the squared euclidean distance to another point
func (p Point) DistanceSq(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return dx*dx + dy*dy
}

// String returns string representation of point
func (p Point) String() string {
	return fmt.Sprintf("(%.1f,%.1f)", p.X, p.Y)
}

// Region is an inclusive rectangular cell range
type Region struct {
	MinX int `json:"min_x"`
	MaxX int `json:"max_x"`
	MinY int `json:"min_y"`
	MaxY int `json:"max_y"`
}

// NewRegion creates a region from inclusive bounds
func NewRegion(minX, maxX, minY, maxY int) Region {
	return Region{MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY}
}

// Contains reports whether (x, y) lies inside the region
func (r Region) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// IsEmpty reports whether the region holds no cells
func (r Region) IsEmpty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY
}

// Area returns the number of cells in the region
func (r Region) Area() int {
	if r.IsEmpty() {
		return 0
	}
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// Clamp intersects the region with a width x height board
func (r Region) Clamp(width, height int) Region {
	return Region{
		MinX: max(r.MinX, 0),
		MaxX: min(r.MaxX, width-1),
		MinY: max(r.MinY, 0),
		MaxY: min(r.MaxY, height-1),
	}
}

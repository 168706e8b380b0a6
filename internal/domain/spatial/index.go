// Package spatial provides a chunked occupancy index over integer grid cells.
package spatial

import (
	"math"

	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Entry is one occupied cell
type Entry[T any] struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Value T   `json:"value"`
}

// Cell returns the entry coordinates as a cell
func (e Entry[T]) Cell() shared.Cell {
	return shared.Cell{X: e.X, Y: e.Y}
}

// Stats summarizes index occupancy for diagnostics
type Stats struct {
	ChunkCount       int     `json:"chunk_count"`
	TileCount        int     `json:"tile_count"`
	AverageOccupancy float64 `json:"average_occupancy"` // tiles per live chunk
}

// Index maps cells of a bounded board to values. Cells are grouped into square
// chunks that are created on first insert and discarded when they empty.
//
// Out-of-bounds coordinates are absorbed silently: inserts become no-ops and
// lookups report absence. Index is not safe for concurrent use.
type Index[T any] struct {
	width, height int
	chunkSize     int
	chunks        map[int64]*chunk[T]
	count         int
}

// New creates an empty index for a width x height board
func New[T any](width, height, chunkSize int) (*Index[T], error) {
	if width <= 0 || height <= 0 {
		return nil, shared.NewDomainErrorf(shared.ErrCodeInvalidBoardSize,
			"board size must be positive, got %dx%d", width, height)
	}
	if chunkSize <= 0 {
		return nil, shared.NewDomainErrorf(shared.ErrCodeInvalidChunkSize,
			"chunk size must be positive, got %d", chunkSize)
	}
	return &Index[T]{
		width:     width,
		height:    height,
		chunkSize: chunkSize,
		chunks:    make(map[int64]*chunk[T]),
	}, nil
}

// Width returns the board width the index was created for
func (idx *Index[T]) Width() int { return idx.width }

// Height returns the board height the index was created for
func (idx *Index[T]) Height() int { return idx.height }

// ChunkSize returns the side length of a chunk in cells
func (idx *Index[T]) ChunkSize() int { return idx.chunkSize }

// InBounds reports whether (x, y) is a cell of the indexed board
func (idx *Index[T]) InBounds(x, y int) bool {
	return x >= 0 && x < idx.width && y >= 0 && y < idx.height
}

// Insert stores value at (x, y), replacing any previous occupant.
// Out-of-bounds inserts are ignored.
func (idx *Index[T]) Insert(x, y int, value T) {
	if !idx.InBounds(x, y) {
		return
	}

	cx, cy := x/idx.chunkSize, y/idx.chunkSize
	key := chunkKey(cx, cy)
	c, ok := idx.chunks[key]
	if !ok {
		c = newChunk[T](cx, cy)
		idx.chunks[key] = c
	}

	local := idx.localKey(x, y)
	if _, exists := c.entries[local]; !exists {
		idx.count++
	}
	c.entries[local] = Entry[T]{X: x, Y: y, Value: value}
}

// Remove deletes the occupant of (x, y). It reports whether anything was removed.
func (idx *Index[T]) Remove(x, y int) bool {
	if !idx.InBounds(x, y) {
		return false
	}

	key := chunkKey(x/idx.chunkSize, y/idx.chunkSize)
	c, ok := idx.chunks[key]
	if !ok {
		return false
	}

	local := idx.localKey(x, y)
	if _, exists := c.entries[local]; !exists {
		return false
	}
	delete(c.entries, local)
	idx.count--

	if len(c.entries) == 0 {
		delete(idx.chunks, key)
	}
	return true
}

// Get returns the occupant of (x, y)
func (idx *Index[T]) Get(x, y int) (T, bool) {
	var zero T
	if !idx.InBounds(x, y) {
		return zero, false
	}

	c, ok := idx.chunks[chunkKey(x/idx.chunkSize, y/idx.chunkSize)]
	if !ok {
		return zero, false
	}
	e, ok := c.entries[idx.localKey(x, y)]
	if !ok {
		return zero, false
	}
	return e.Value, true
}

// QueryRegion returns every entry inside the inclusive rectangle.
// Only chunks intersecting the rectangle are visited. Result order is unspecified.
func (idx *Index[T]) QueryRegion(r shared.Region) []Entry[T] {
	r = r.Clamp(idx.width, idx.height)
	if r.IsEmpty() || idx.count == 0 {
		return nil
	}

	minCX, maxCX := floorDiv(r.MinX, idx.chunkSize), floorDiv(r.MaxX, idx.chunkSize)
	minCY, maxCY := floorDiv(r.MinY, idx.chunkSize), floorDiv(r.MaxY, idx.chunkSize)

	var result []Entry[T]
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			c, ok := idx.chunks[chunkKey(cx, cy)]
			if !ok {
				continue
			}
			for _, e := range c.entries {
				if r.Contains(e.X, e.Y) {
					result = append(result, e)
				}
			}
		}
	}
	return result
}

// QueryRadius returns every entry within euclidean distance r of (cx, cy)
func (idx *Index[T]) QueryRadius(cx, cy int, r float64) []Entry[T] {
	if r < 0 || math.IsNaN(r) {
		return nil
	}

	// radii past the far board corner cover the whole board
	region := shared.NewRegion(0, idx.width-1, 0, idx.height-1)
	if r < float64(abs(cx)+abs(cy)+idx.width+idx.height) {
		reach := int(math.Ceil(r))
		region = shared.NewRegion(cx-reach, cx+reach, cy-reach, cy+reach)
	}
	candidates := idx.QueryRegion(region)

	rr := r * r
	result := candidates[:0]
	for _, e := range candidates {
		dx := float64(e.X - cx)
		dy := float64(e.Y - cy)
		if dx*dx+dy*dy <= rr {
			result = append(result, e)
		}
	}
	return result
}

// ForEach calls fn for every entry until fn returns false
func (idx *Index[T]) ForEach(fn func(Entry[T]) bool) {
	for _, c := range idx.chunks {
		for _, e := range c.entries {
			if !fn(e) {
				return
			}
		}
	}
}

// Len returns the number of occupied cells
func (idx *Index[T]) Len() int {
	return idx.count
}

// Clear removes every entry and chunk
func (idx *Index[T]) Clear() {
	idx.chunks = make(map[int64]*chunk[T])
	idx.count = 0
}

// Stats reports chunk and tile counts
func (idx *Index[T]) Stats() Stats {
	s := Stats{
		ChunkCount: len(idx.chunks),
		TileCount:  idx.count,
	}
	if s.ChunkCount > 0 {
		s.AverageOccupancy = float64(s.TileCount) / float64(s.ChunkCount)
	}
	return s
}

func (idx *Index[T]) localKey(x, y int) int {
	return (y%idx.chunkSize)*idx.chunkSize + x%idx.chunkSize
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

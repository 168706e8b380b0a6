package spatial

// chunk owns the entries of one chunkSize x chunkSize square of cells.
// Entries are keyed by localY*chunkSize + localX.
type chunk[T any] struct {
	cx, cy  int
	entries map[int]Entry[T]
}

func newChunk[T any](cx, cy int) *chunk[T] {
	return &chunk[T]{
		cx:      cx,
		cy:      cy,
		entries: make(map[int]Entry[T]),
	}
}

// chunkKey packs chunk coordinates into one arena key.
// Board cells are never negative, so both halves fit in 32 bits.
func chunkKey(cx, cy int) int64 {
	return int64(cx)<<32 | int64(uint32(cy))
}

// floorDiv divides rounding toward negative infinity
func floorDiv(v, size int) int {
	q := v / size
	if v < 0 && v%size != 0 {
		q--
	}
	return q
}

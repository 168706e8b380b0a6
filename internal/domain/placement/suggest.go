package placement

import (
	"fmt"
	"math"
	"sort"

	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/samber/lo"
)

// Suggest ranks up to n free cells around target as alternatives for tile.
// n <= 0 uses the configured maximum.
func (v *Validator) Suggest(tile board.Tile, target shared.Cell, all []board.PlacedTile, n int) []Suggestion {
	if n <= 0 {
		n = v.cfg.MaxSuggestions
	}
	return v.suggest(target, excluding(all, tile.ID), n)
}

// Proximity describes the tiles around target within radius.
// radius <= 0 uses the configured proximity radius.
func (v *Validator) Proximity(target shared.Cell, all []board.PlacedTile, radius float64) Proximity {
	if radius <= 0 {
		radius = v.cfg.ProximityRadius
	}
	return ProximityOf(target, all, radius)
}

type candidate struct {
	Suggestion
	distSq int
}

func (v *Validator) suggest(target shared.Cell, others []board.PlacedTile, n int) []Suggestion {
	radius := v.cfg.SuggestionRadius
	occupied := make(map[shared.Cell]struct{}, len(others))
	for _, pt := range others {
		occupied[pt.Cell] = struct{}{}
	}

	var candidates []candidate
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			c := target.Add(dx, dy)
			d2 := c.DistanceSq(target)
			if d2 == 0 || d2 > radius*radius || !c.InBounds(v.cfg.BoardWidth, v.cfg.BoardHeight) {
				continue
			}
			if _, taken := occupied[c]; taken {
				continue
			}
			score, count := v.score(c, others)
			candidates = append(candidates, candidate{
				Suggestion: Suggestion{Cell: c, Score: score, Reason: suggestionReason(count)},
				distSq:     d2,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.distSq != b.distSq {
			return a.distSq < b.distSq
		}
		if a.Cell.Y != b.Cell.Y {
			return a.Cell.Y < b.Cell.Y
		}
		return a.Cell.X < b.Cell.X
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]Suggestion, len(candidates))
	for i, c := range candidates {
		out[i] = c.Suggestion
	}
	return out
}

// score sums weight/distance over neighbors within the suggestion radius of c,
// with a half-weight bonus for each 8-adjacent neighbor
func (v *Validator) score(c shared.Cell, others []board.PlacedTile) (float64, int) {
	r2 := v.cfg.SuggestionRadius * v.cfg.SuggestionRadius
	score, count := 0.0, 0
	for _, pt := range others {
		d2 := pt.Cell.DistanceSq(c)
		if d2 == 0 || d2 > r2 {
			continue
		}
		w := v.weight(pt.Tile.Type)
		score += w / math.Sqrt(float64(d2))
		if pt.Cell.IsAdjacent(c) {
			score += 0.5 * w
		}
		count++
	}
	return score, count
}

func (v *Validator) weight(tileType string) float64 {
	if w, ok := v.cfg.TypeWeights[tileType]; ok {
		return w
	}
	return 1
}

func suggestionReason(neighbors int) string {
	switch neighbors {
	case 0:
		return "Free cell close to the target"
	case 1:
		return "Free cell next to 1 tile"
	default:
		return fmt.Sprintf("Free cell near %d tiles", neighbors)
	}
}

// excluding drops the tile being validated from the board snapshot
func excluding(all []board.PlacedTile, id board.TileID) []board.PlacedTile {
	return lo.Filter(all, func(pt board.PlacedTile, _ int) bool {
		return pt.Tile.ID != id
	})
}

package service

import (
	"github.com/danghamo/isoboard/internal/domain/placement"
)

// Rule priorities used by DefaultRules
const (
	OccupiedPriority = 100
	AffinityPriority = 10
)

// DefaultRules is the rule set installed when the caller supplies none
func DefaultRules() []placement.Rule {
	return []placement.Rule{
		OccupiedRule(OccupiedPriority),
	}
}

// OccupiedRule blocks placement onto a cell that already holds another tile
func OccupiedRule(priority int) placement.Rule {
	return placement.Rule{
		ID:       "occupied",
		Priority: priority,
		Applies: func(ctx placement.Context) bool {
			return ctx.Occupant != nil
		},
		Evaluate: func(ctx placement.Context) placement.Verdict {
			return placement.Block("Cell is occupied by " + ctx.Occupant.Tile.Type)
		},
	}
}

// AffinityRule rewards placing a tile next to tiles of its own type and
// penalises placing it next to any of the avoided types.
func AffinityRule(id string, priority int, avoid ...string) placement.Rule {
	avoided := make(map[string]struct{}, len(avoid))
	for _, a := range avoid {
		avoided[a] = struct{}{}
	}

	return placement.Rule{
		ID:       id,
		Priority: priority,
		Applies: func(ctx placement.Context) bool {
			return len(ctx.Nearby) > 0
		},
		Evaluate: func(ctx placement.Context) placement.Verdict {
			same, bad := 0, 0
			for _, pt := range ctx.Nearby {
				if !pt.Cell.IsAdjacent(ctx.Target) {
					continue
				}
				if pt.Tile.Type == ctx.Tile.Type {
					same++
				}
				if _, ok := avoided[pt.Tile.Type]; ok {
					bad++
				}
			}

			switch {
			case bad > same:
				return placement.Negative("Next to incompatible tiles", "adjacent to avoided type")
			case same > 0:
				return placement.Positive("Next to matching tiles", "adjacent to same type")
			default:
				return placement.Neutral("")
			}
		},
	}
}

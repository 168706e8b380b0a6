// Package placement combines externally supplied rules into a single verdict
// for a candidate tile placement.
package placement

import (
	"cmp"
	"slices"

	"github.com/samber/lo"

	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Config holds validator parameters
type Config struct {
	BoardWidth       int     `mapstructure:"board_width"`
	BoardHeight      int     `mapstructure:"board_height"`
	ProximityRadius  float64 `mapstructure:"proximity_radius"`
	SuggestionRadius int     `mapstructure:"suggestion_radius"`
	MaxSuggestions   int     `mapstructure:"max_suggestions"`

	// TypeWeights scales how much a neighbor of a given type attracts suggestions.
	// Missing types weigh 1.
	TypeWeights map[string]float64 `mapstructure:"type_weights"`
}

// NeighborSource answers radius queries, typically backed by a spatial index
type NeighborSource interface {
	TilesNear(c shared.Cell, radius float64) []board.PlacedTile
}

// Validator evaluates placements against an ordered rule list.
// Rules are called synchronously; a panicking rule propagates to the caller.
type Validator struct {
	cfg   Config
	rules []Rule
}

// NewValidator creates a validator with no rules
func NewValidator(cfg Config) (*Validator, error) {
	if cfg.BoardWidth <= 0 || cfg.BoardHeight <= 0 {
		return nil, shared.NewDomainErrorf(shared.ErrCodeInvalidBoardSize,
			"board size must be positive, got %dx%d", cfg.BoardWidth, cfg.BoardHeight)
	}
	if cfg.ProximityRadius <= 0 {
		cfg.ProximityRadius = 3
	}
	if cfg.SuggestionRadius <= 0 {
		cfg.SuggestionRadius = 3
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 3
	}
	return &Validator{cfg: cfg}, nil
}

// Config returns the effective configuration
func (v *Validator) Config() Config {
	return v.cfg
}

// AddRule registers a rule, replacing any rule with the same ID.
// Rules stay sorted by descending priority; equal priorities keep insertion order.
func (v *Validator) AddRule(rule Rule) error {
	if rule.ID == "" || rule.Evaluate == nil {
		return shared.NewDomainError(shared.ErrCodeInvalidRule, "rule needs an ID and an Evaluate function")
	}

	v.RemoveRule(rule.ID)
	v.rules = append(v.rules, rule)
	slices.SortStableFunc(v.rules, func(a, b Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return nil
}

// RemoveRule unregisters a rule and reports whether it existed
func (v *Validator) RemoveRule(id string) bool {
	i := slices.IndexFunc(v.rules, func(r Rule) bool { return r.ID == id })
	if i < 0 {
		return false
	}
	v.rules = slices.Delete(v.rules, i, i+1)
	return true
}

// ClearRules removes every rule
func (v *Validator) ClearRules() {
	v.rules = nil
}

// Rules returns the rules in evaluation order
func (v *Validator) Rules() []Rule {
	return slices.Clone(v.rules)
}

// Validate judges placing tile at target given every tile on the board
func (v *Validator) Validate(tile board.Tile, target shared.Cell, all []board.PlacedTile) Verdict {
	if !target.InBounds(v.cfg.BoardWidth, v.cfg.BoardHeight) {
		return Verdict{Feedback: FeedbackBlocked, Reason: "Outside the board"}.withDefaults()
	}

	return v.evaluate(tile, target, excluding(all, tile.ID))
}

// ValidateNear is Validate with tiles fetched from src around target. Rules see
// only that neighborhood in Context.All.
func (v *Validator) ValidateNear(tile board.Tile, target shared.Cell, src NeighborSource) Verdict {
	return v.Validate(tile, target, src.TilesNear(target, v.reach()))
}

// reach is the radius that covers both proximity and every suggestion candidate's neighbors
func (v *Validator) reach() float64 {
	return max(v.cfg.ProximityRadius, float64(2*v.cfg.SuggestionRadius))
}

func (v *Validator) evaluate(tile board.Tile, target shared.Cell, others []board.PlacedTile) Verdict {
	ctx := Context{
		Tile:        tile,
		Target:      target,
		All:         others,
		BoardWidth:  v.cfg.BoardWidth,
		BoardHeight: v.cfg.BoardHeight,
	}
	if occupant, ok := lo.Find(others, func(pt board.PlacedTile) bool { return pt.Cell == target }); ok {
		ctx.Occupant = &occupant
	}
	for _, n := range neighbors(target, others, v.cfg.ProximityRadius) {
		ctx.Nearby = append(ctx.Nearby, n.PlacedTile)
	}

	var partials []Verdict
	for _, rule := range v.rules {
		if !rule.applies(ctx) {
			continue
		}
		partial := rule.Evaluate(ctx)
		if partial.Blocked() {
			partial.IsValid, partial.CanPlace, partial.Feedback = false, false, FeedbackBlocked
			partial = partial.withDefaults()
			partial.Suggestions = v.suggest(target, others, v.cfg.MaxSuggestions)
			return partial
		}
		partials = append(partials, partial)
	}

	combined := Verdict{IsValid: true, CanPlace: true, Feedback: FeedbackNeutral}.withDefaults()
	if len(partials) > 0 {
		combined = combine(partials)
	}
	if combined.Feedback == FeedbackNeutral {
		combined.Suggestions = v.suggest(target, others, v.cfg.MaxSuggestions)
	}
	return combined
}

// combine merges non-blocking partial verdicts by majority sentiment
func combine(partials []Verdict) Verdict {
	out := Verdict{IsValid: true, CanPlace: true}

	positive, negative := 0, 0
	for _, p := range partials {
		out.Benefits = append(out.Benefits, p.Benefits...)
		out.Penalties = append(out.Penalties, p.Penalties...)
		switch p.Feedback {
		case FeedbackPositive:
			positive++
		case FeedbackNegative:
			negative++
		}
	}

	switch {
	case positive > negative:
		out.Feedback = FeedbackPositive
	case negative > positive:
		out.Feedback = FeedbackNegative
	default:
		out.Feedback = FeedbackNeutral
	}

	if first, ok := lo.Find(partials, func(p Verdict) bool { return p.Feedback == out.Feedback }); ok {
		out.Icon, out.Color, out.Animation, out.Reason = first.Icon, first.Color, first.Animation, first.Reason
	}
	return out.withDefaults()
}

// Gate binds a validator to a neighbor source to vet single drops
type Gate struct {
	validator *Validator
	source    NeighborSource
}

// Gate returns a checker that validates against src
func (v *Validator) Gate(src NeighborSource) Gate {
	return Gate{validator: v, source: src}
}

// Check validates placing tile at target
func (g Gate) Check(tile board.Tile, target shared.Cell) Verdict {
	return g.validator.ValidateNear(tile, target, g.source)
}

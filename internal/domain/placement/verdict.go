package placement

import (
	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Feedback is the sentiment of a verdict
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
	FeedbackNeutral  Feedback = "neutral"
	FeedbackBlocked  Feedback = "blocked"
)

// Verdict is the outcome of validating one candidate placement
type Verdict struct {
	IsValid     bool         `json:"is_valid"`
	CanPlace    bool         `json:"can_place"`
	Feedback    Feedback     `json:"feedback"`
	Icon        string       `json:"icon,omitempty"`
	Color       string       `json:"color,omitempty"`
	Animation   string       `json:"animation,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Benefits    []string     `json:"benefits,omitempty"`
	Penalties   []string     `json:"penalties,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Blocked reports whether the placement is refused
func (v Verdict) Blocked() bool {
	return v.Feedback == FeedbackBlocked || !v.CanPlace
}

// Suggestion is an alternative cell for a refused or lukewarm placement
type Suggestion struct {
	Cell   shared.Cell `json:"cell"`
	Score  float64     `json:"score"`
	Reason string      `json:"reason"`
}

type hint struct {
	icon, color, animation, reason string
}

var defaultHints = map[Feedback]hint{
	FeedbackPositive: {icon: "check", color: "#4caf50", animation: "pulse", reason: "Good placement"},
	FeedbackNegative: {icon: "warning", color: "#ff9800", animation: "shake", reason: "Poor placement"},
	FeedbackNeutral:  {icon: "info", color: "#9e9e9e", animation: "none", reason: "No strong preference"},
	FeedbackBlocked:  {icon: "block", color: "#f44336", animation: "shake", reason: "Placement blocked"},
}

// withDefaults fills empty presentation hints from the stock hint of its feedback
func (v Verdict) withDefaults() Verdict {
	d := defaultHints[v.Feedback]
	if v.Icon == "" {
		v.Icon = d.icon
	}
	if v.Color == "" {
		v.Color = d.color
	}
	if v.Animation == "" {
		v.Animation = d.animation
	}
	if v.Reason == "" {
		v.Reason = d.reason
	}
	return v
}

// Positive builds a positive partial verdict
func Positive(reason string, benefits ...string) Verdict {
	return Verdict{IsValid: true, CanPlace: true, Feedback: FeedbackPositive, Reason: reason, Benefits: benefits}
}

// Negative builds a negative partial verdict
func Negative(reason string, penalties ...string) Verdict {
	return Verdict{IsValid: true, CanPlace: true, Feedback: FeedbackNegative, Reason: reason, Penalties: penalties}
}

// Neutral builds a neutral partial verdict
func Neutral(reason string) Verdict {
	return Verdict{IsValid: true, CanPlace: true, Feedback: FeedbackNeutral, Reason: reason}
}

// Block builds a blocking partial verdict
func Block(reason string) Verdict {
	return Verdict{Feedback: FeedbackBlocked, Reason: reason}
}

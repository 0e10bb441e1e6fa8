package stats

import (
	"fmt"
	"math"
	"time"
)

// Kind selects how a modifier contributes to the computed value.
type Kind string

const (
	KindAdditive       Kind = "additive"
	KindMultiplicative Kind = "multiplicative"
	KindOverride       Kind = "override"
)

// StackingRule governs how a new modifier combines with existing
// modifiers sharing its source.
type StackingRule string

const (
	RuleStack   StackingRule = "stack"
	RuleReplace StackingRule = "replace"
	RuleHighest StackingRule = "highest"
	RuleRefresh StackingRule = "refresh"
)

// DefaultPriority is assigned when a modifier config leaves priority unset.
// Priority only matters for override modifiers, where the highest wins.
const DefaultPriority = 100.0

// Modifier adjusts a stat's value until removed or expired.
type Modifier struct {
	ID        string       `json:"id"`
	Value     float64      `json:"value"`
	Kind      Kind         `json:"kind"`
	Source    string       `json:"source"`
	Priority  float64      `json:"priority"`
	Tags      []string     `json:"tags,omitempty"`
	Rule      StackingRule `json:"rule"`
	ExpiresAt time.Time    `json:"expiresAt,omitempty"`
}

// Permanent reports whether the modifier has no finite lifetime.
func (m Modifier) Permanent() bool {
	return m.ExpiresAt.IsZero()
}

// Expired reports whether the modifier's lifetime has elapsed at now.
func (m Modifier) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// HasTag reports whether the modifier carries the given tag.
func (m Modifier) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ModifierConfig describes a modifier before the store assigns its id.
type ModifierConfig struct {
	Value    float64
	Kind     Kind
	Source   string
	Priority *float64
	Tags     []string
	Rule     StackingRule

	// Duration sets a finite lifetime relative to insertion time; zero
	// means permanent. ExpiresAt, when set, wins over Duration.
	Duration  time.Duration
	ExpiresAt time.Time

	// ValueMin and ValueMax clamp Value itself at insertion time.
	ValueMin *float64
	ValueMax *float64
}

// NewModifier validates the config and builds a modifier with the given id.
func NewModifier(cfg ModifierConfig, id string, now time.Time) (Modifier, error) {
	if id == "" {
		return Modifier{}, fmt.Errorf("%w: missing modifier id", ErrInvalidConfig)
	}
	if cfg.Source == "" {
		return Modifier{}, fmt.Errorf("%w: missing modifier source", ErrInvalidConfig)
	}
	switch cfg.Kind {
	case KindAdditive, KindMultiplicative, KindOverride:
	case "":
		return Modifier{}, fmt.Errorf("%w: missing modifier kind", ErrInvalidConfig)
	default:
		return Modifier{}, fmt.Errorf("%w: unknown modifier kind %q", ErrInvalidConfig, cfg.Kind)
	}
	rule := cfg.Rule
	switch rule {
	case RuleStack, RuleReplace, RuleHighest, RuleRefresh:
	case "":
		rule = RuleStack
	default:
		return Modifier{}, fmt.Errorf("%w: unknown stacking rule %q", ErrInvalidConfig, cfg.Rule)
	}
	if math.IsNaN(cfg.Value) || math.IsInf(cfg.Value, 0) {
		return Modifier{}, fmt.Errorf("%w: non-finite modifier value", ErrInvalidConfig)
	}

	value := cfg.Value
	if cfg.ValueMin != nil && value < *cfg.ValueMin {
		value = *cfg.ValueMin
	}
	if cfg.ValueMax != nil && value > *cfg.ValueMax {
		value = *cfg.ValueMax
	}

	priority := DefaultPriority
	if cfg.Priority != nil {
		priority = *cfg.Priority
	}

	expiresAt := cfg.ExpiresAt
	if expiresAt.IsZero() && cfg.Duration > 0 {
		expiresAt = now.Add(cfg.Duration)
	}

	mod := Modifier{
		ID:        id,
		Value:     value,
		Kind:      cfg.Kind,
		Source:    cfg.Source,
		Priority:  priority,
		Rule:      rule,
		ExpiresAt: expiresAt,
	}
	if len(cfg.Tags) > 0 {
		mod.Tags = append([]string(nil), cfg.Tags...)
	}
	return mod, nil
}

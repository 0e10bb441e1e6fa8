package stats

import "fmt"

// Stack owns one stat's base value, its modifier collection in insertion
// order, clamp and rounding config, and the cached computed result. It is
// not safe for concurrent use; the owning store serializes access.
type Stack struct {
	base          float64
	baseSet       bool
	modifiers     []Modifier
	clampMin      *float64
	clampMax      *float64
	decimalPlaces *int
	cached        float64
	dirty         bool
}

// AddResult reports how stacking resolution settled an insert.
type AddResult struct {
	// Inserted is false when a Highest rule discarded the incoming
	// modifier or a Refresh rule updated an existing one in place.
	Inserted bool
	// Refreshed carries the id of the same-source modifier updated in
	// place by a Refresh rule.
	Refreshed string
	// Removed lists modifiers displaced by Replace or Highest resolution.
	Removed []Modifier
}

// Changed reports whether the add mutated the stack at all.
func (r AddResult) Changed() bool {
	return r.Inserted || r.Refreshed != "" || len(r.Removed) > 0
}

// NewStack returns an empty stack. Its value computes to zero until a base
// is set or a modifier lands.
func NewStack() *Stack {
	return &Stack{dirty: true}
}

// SetBase overwrites the base value and marks the cache stale.
func (s *Stack) SetBase(value float64) {
	s.base = value
	s.baseSet = true
	s.dirty = true
}

// SetClamps bounds the final computed value. It fails until the stack has
// been given a base value at least once.
func (s *Stack) SetClamps(min, max *float64) error {
	if !s.baseSet {
		return fmt.Errorf("set clamps: %w", ErrNotFound)
	}
	s.clampMin = copyFloat(min)
	s.clampMax = copyFloat(max)
	s.dirty = true
	return nil
}

// SetDecimalPlaces configures rounding of the final computed value. It
// fails until the stack has been given a base value at least once.
func (s *Stack) SetDecimalPlaces(places *int) error {
	if !s.baseSet {
		return fmt.Errorf("set decimal places: %w", ErrNotFound)
	}
	if places != nil && *places < 0 {
		return fmt.Errorf("%w: negative decimal places", ErrInvalidConfig)
	}
	s.decimalPlaces = copyInt(places)
	s.dirty = true
	return nil
}

// Add applies stacking-rule resolution against existing modifiers sharing
// the new modifier's source, then inserts. The caller owns id assignment.
func (s *Stack) Add(mod Modifier) AddResult {
	res := AddResult{}
	switch mod.Rule {
	case RuleReplace:
		res.Removed = s.removeWhere(func(m Modifier) bool { return m.Source == mod.Source })
	case RuleHighest:
		for i := range s.modifiers {
			if s.modifiers[i].Source == mod.Source && s.modifiers[i].Value >= mod.Value {
				// An equal-or-higher modifier already holds the slot;
				// the incoming one never lands.
				return res
			}
		}
		res.Removed = s.removeWhere(func(m Modifier) bool { return m.Source == mod.Source })
	case RuleRefresh:
		for i := range s.modifiers {
			if s.modifiers[i].Source != mod.Source {
				continue
			}
			s.modifiers[i].Value = mod.Value
			s.modifiers[i].ExpiresAt = mod.ExpiresAt
			res.Refreshed = s.modifiers[i].ID
			s.dirty = true
			return res
		}
	}
	s.modifiers = append(s.modifiers, mod)
	res.Inserted = true
	s.dirty = true
	return res
}

// Remove removes the modifier with the given id, returning it when found.
func (s *Stack) Remove(id string) (Modifier, bool) {
	removed := s.removeWhere(func(m Modifier) bool { return m.ID == id })
	if len(removed) == 0 {
		return Modifier{}, false
	}
	return removed[0], true
}

// RemoveBySource removes every modifier with the given source.
func (s *Stack) RemoveBySource(source string) []Modifier {
	return s.removeWhere(func(m Modifier) bool { return m.Source == source })
}

// RemoveByTag removes every modifier carrying the given tag.
func (s *Stack) RemoveByTag(tag string) []Modifier {
	return s.removeWhere(func(m Modifier) bool { return m.HasTag(tag) })
}

func (s *Stack) removeWhere(match func(Modifier) bool) []Modifier {
	var removed []Modifier
	kept := s.modifiers[:0]
	for _, mod := range s.modifiers {
		if match(mod) {
			removed = append(removed, mod)
			continue
		}
		kept = append(kept, mod)
	}
	if len(removed) > 0 {
		s.modifiers = kept
		s.dirty = true
	}
	return removed
}

// Value returns the computed stat value, recomputing only when a mutation
// has marked the cache stale.
func (s *Stack) Value() float64 {
	if s.dirty {
		s.cached = Compute(s.base, s.modifiers, s.clampMin, s.clampMax, s.decimalPlaces)
		s.dirty = false
	}
	return s.cached
}

// Base returns the raw base value regardless of modifiers.
func (s *Stack) Base() float64 {
	return s.base
}

// Modifiers returns a copy of the modifier collection in insertion order.
func (s *Stack) Modifiers() []Modifier {
	if len(s.modifiers) == 0 {
		return nil
	}
	return cloneModifiers(s.modifiers)
}

// Modifier returns the modifier with the given id, if present.
func (s *Stack) Modifier(id string) (Modifier, bool) {
	for _, mod := range s.modifiers {
		if mod.ID == id {
			return mod, true
		}
	}
	return Modifier{}, false
}

// Len returns the number of modifiers on the stack.
func (s *Stack) Len() int {
	return len(s.modifiers)
}

func cloneModifiers(mods []Modifier) []Modifier {
	cloned := make([]Modifier, len(mods))
	copy(cloned, mods)
	for i := range cloned {
		if len(cloned[i].Tags) > 0 {
			cloned[i].Tags = append([]string(nil), cloned[i].Tags...)
		}
	}
	return cloned
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

package stats

// Snapshot is the cache-free view of a stack's externally visible state,
// used at the replication boundary.
type Snapshot struct {
	Base          float64    `json:"base"`
	Modifiers     []Modifier `json:"modifiers,omitempty"`
	ClampMin      *float64   `json:"clampMin,omitempty"`
	ClampMax      *float64   `json:"clampMax,omitempty"`
	DecimalPlaces *int       `json:"decimalPlaces,omitempty"`
}

// Snapshot captures the stack's current state for replication.
func (s *Stack) Snapshot() Snapshot {
	return Snapshot{
		Base:          s.base,
		Modifiers:     s.Modifiers(),
		ClampMin:      copyFloat(s.clampMin),
		ClampMax:      copyFloat(s.clampMax),
		DecimalPlaces: copyInt(s.decimalPlaces),
	}
}

// Restore wholesale-replaces the stack's state from a snapshot and marks
// the cache stale. Mirrors use it to apply incoming sync messages.
func (s *Stack) Restore(snapshot Snapshot) {
	s.base = snapshot.Base
	s.baseSet = true
	if len(snapshot.Modifiers) > 0 {
		s.modifiers = cloneModifiers(snapshot.Modifiers)
	} else {
		s.modifiers = nil
	}
	s.clampMin = copyFloat(snapshot.ClampMin)
	s.clampMax = copyFloat(snapshot.ClampMax)
	s.decimalPlaces = copyInt(snapshot.DecimalPlaces)
	s.dirty = true
}

// Value computes the snapshot's settled value without touching any stack.
func (snapshot Snapshot) Value() float64 {
	return Compute(snapshot.Base, snapshot.Modifiers, snapshot.ClampMin, snapshot.ClampMax, snapshot.DecimalPlaces)
}

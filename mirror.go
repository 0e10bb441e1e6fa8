package statforge

import (
	"fmt"
	"sync"

	"statforge/stats"
)

// Mirror is a passive, read-only replica of one owner's stats built solely
// from received snapshots. It applies sync messages wholesale in arrival
// order (last-write-wins) and never runs stacking logic of its own; the
// received modifier lists already encode it. Local subscribers are
// notified exactly like on the authoritative side.
type Mirror struct {
	mu           sync.Mutex
	stacks       map[string]*stats.Stack
	subs         map[string]map[*Subscription]struct{}
	notifyBuffer int
	closed       bool
}

// NewMirror constructs an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{
		stacks: make(map[string]*stats.Stack),
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// ApplySync overwrites one stat's shadow state from a snapshot and
// recomputes.
func (m *Mirror) ApplySync(path string, snapshot stats.Snapshot) error {
	if err := stats.ValidatePath(path); err != nil {
		return err
	}
	m.mu.Lock()
	change := m.applyLocked(path, snapshot)
	m.mu.Unlock()
	m.deliver(change)
	return nil
}

// ApplyBulkSync applies a full-state snapshot map, one entry per stat.
func (m *Mirror) ApplyBulkSync(snapshots map[string]stats.Snapshot) error {
	for path := range snapshots {
		if err := stats.ValidatePath(path); err != nil {
			return err
		}
	}
	changes := make([]settledChange, 0, len(snapshots))
	m.mu.Lock()
	for path, snapshot := range snapshots {
		changes = append(changes, m.applyLocked(path, snapshot))
	}
	m.mu.Unlock()
	for _, change := range changes {
		m.deliver(change)
	}
	return nil
}

func (m *Mirror) applyLocked(path string, snapshot stats.Snapshot) settledChange {
	stack := m.stacks[path]
	if stack == nil {
		stack = stats.NewStack()
		m.stacks[path] = stack
	}
	before := stack.Value()
	stack.Restore(snapshot)
	after := stack.Value()
	change := settledChange{
		key:     stackKey{path: path},
		value:   after,
		settled: true,
		changed: after != before,
	}
	if change.changed {
		for sub := range m.subs[path] {
			change.subs = append(change.subs, sub)
		}
	}
	return change
}

func (m *Mirror) deliver(change settledChange) {
	if !change.settled || !change.changed {
		return
	}
	for _, sub := range change.subs {
		sub.notify(change.value)
	}
}

// Value returns a mirrored stat's computed value, zero when absent.
func (m *Mirror) Value(path string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.stacks[path]
	if stack == nil {
		return 0
	}
	return stack.Value()
}

// Base returns a mirrored stat's base value, zero when absent.
func (m *Mirror) Base(path string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.stacks[path]
	if stack == nil {
		return 0
	}
	return stack.Base()
}

// Modifiers returns a copy of a mirrored stat's modifier list.
func (m *Mirror) Modifiers(path string) []stats.Modifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.stacks[path]
	if stack == nil {
		return nil
	}
	return stack.Modifiers()
}

// Paths returns every stat path the mirror has received.
func (m *Mirror) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.stacks))
	for path := range m.stacks {
		paths = append(paths, path)
	}
	return paths
}

// Subscribe registers a callback for settled value changes on one
// mirrored stat.
func (m *Mirror) Subscribe(path string, fn func(float64)) (*Subscription, error) {
	if err := stats.ValidatePath(path); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil subscriber callback", stats.ErrInvalidConfig)
	}
	sub := newSubscription(fn, m.notifyBuffer, func(cancelled *Subscription) {
		m.mu.Lock()
		if set := m.subs[path]; set != nil {
			delete(set, cancelled)
			if len(set) == 0 {
				delete(m.subs, path)
			}
		}
		m.mu.Unlock()
	})

	m.mu.Lock()
	if m.subs[path] == nil {
		m.subs[path] = make(map[*Subscription]struct{})
	}
	m.subs[path][sub] = struct{}{}
	m.mu.Unlock()
	return sub, nil
}

// Close cancels every subscription. Idempotent.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var cancelled []*Subscription
	for _, set := range m.subs {
		for sub := range set {
			cancelled = append(cancelled, sub)
		}
	}
	m.subs = make(map[string]map[*Subscription]struct{})
	m.mu.Unlock()

	for _, sub := range cancelled {
		sub.Cancel()
	}
}

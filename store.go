package statforge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"statforge/logging"
	"statforge/logging/statevents"
	"statforge/stats"
)

type stackKey struct {
	owner string
	path  string
}

// indexRef locates one modifier inside the store for the secondary indices.
type indexRef struct {
	owner string
	path  string
	id    string
}

// SyncFunc receives a settled stat snapshot for replication. The store
// invokes it synchronously after every settled change; delivery, ordering,
// and retry are the channel's concern.
type SyncFunc func(ownerID, path string, snapshot stats.Snapshot)

// StoreConfig tunes a store. The zero value is usable.
type StoreConfig struct {
	// IDSource generates modifier ids; it must never repeat a value for
	// the lifetime of the store. Defaults to uuid.NewString.
	IDSource func() string
	// Clock supplies the current time for modifier lifetimes.
	Clock func() time.Time
	// Publisher receives structured stat lifecycle events.
	Publisher logging.Publisher
	// OnSync receives settled snapshots for replication.
	OnSync SyncFunc
	// NotifyBuffer sizes each subscription's delivery queue.
	NotifyBuffer int
}

// ModifierSpec names the target stat for one entry of a batch insert.
type ModifierSpec struct {
	Owner  string
	Path   string
	Config stats.ModifierConfig
}

// Store owns every stat stack across all owners, the secondary indices by
// source and tag, the per-stat subscriber lists, and the expiration
// scheduler. All mutations settle synchronously: the cache is recomputed,
// subscribers are queued, and the sync callback fires before the call
// returns.
type Store struct {
	mu       sync.Mutex
	stacks   map[stackKey]*stats.Stack
	owners   map[string]map[string]struct{}
	bySource map[string]map[indexRef]struct{}
	byTag    map[string]map[indexRef]struct{}
	subs     map[stackKey]map[*Subscription]struct{}
	closed   bool

	sched        *scheduler
	idSource     func() string
	clock        func() time.Time
	publisher    logging.Publisher
	syncFn       SyncFunc
	notifyBuffer int

	counters storeCounters
}

// NewStore constructs a store and starts its expiration scheduler.
func NewStore(cfg StoreConfig) *Store {
	s := &Store{
		stacks:       make(map[stackKey]*stats.Stack),
		owners:       make(map[string]map[string]struct{}),
		bySource:     make(map[string]map[indexRef]struct{}),
		byTag:        make(map[string]map[indexRef]struct{}),
		subs:         make(map[stackKey]map[*Subscription]struct{}),
		idSource:     cfg.IDSource,
		clock:        cfg.Clock,
		publisher:    cfg.Publisher,
		syncFn:       cfg.OnSync,
		notifyBuffer: cfg.NotifyBuffer,
	}
	if s.idSource == nil {
		s.idSource = uuid.NewString
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.publisher == nil {
		s.publisher = logging.NopPublisher()
	}
	s.sched = newScheduler(s.clock, s.expireDue)
	return s
}

// settledChange carries everything a mutation produced that must be
// delivered after the store lock is released.
type settledChange struct {
	key      stackKey
	value    float64
	settled  bool
	changed  bool
	snapshot stats.Snapshot
	subs     []*Subscription
}

// SetBase overwrites a stat's base value, creating the stat on first use.
func (s *Store) SetBase(owner, path string, value float64) error {
	if err := stats.ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	stack := s.stackLocked(owner, path, true)
	before := stack.Value()
	stack.SetBase(value)
	change := s.settleLocked(stackKey{owner, path}, stack, before)
	s.mu.Unlock()

	s.counters.mutations.Add(1)
	s.deliver(change)
	statevents.BaseSet(context.Background(), s.publisher, s.ownerRef(owner), path, statevents.BaseSetPayload{Value: value})
	return nil
}

// SetClamps bounds a stat's computed value. The stat must already have a
// base value.
func (s *Store) SetClamps(owner, path string, min, max *float64) error {
	return s.configure(owner, path, func(stack *stats.Stack) error {
		return stack.SetClamps(min, max)
	})
}

// SetDecimalPlaces configures rounding for a stat's computed value. The
// stat must already have a base value.
func (s *Store) SetDecimalPlaces(owner, path string, places *int) error {
	return s.configure(owner, path, func(stack *stats.Stack) error {
		return stack.SetDecimalPlaces(places)
	})
}

func (s *Store) configure(owner, path string, apply func(*stats.Stack) error) error {
	if err := stats.ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	stack := s.stackLocked(owner, path, false)
	if stack == nil {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", owner, path, stats.ErrNotFound)
	}
	before := stack.Value()
	if err := apply(stack); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", owner, path, err)
	}
	change := s.settleLocked(stackKey{owner, path}, stack, before)
	s.mu.Unlock()

	s.counters.mutations.Add(1)
	s.deliver(change)
	return nil
}

// AddModifier validates and inserts one modifier, returning its generated
// id. Stacking resolution against same-source modifiers happens before the
// insert; a Highest-rule discard still returns the generated id without
// mutating the stat.
func (s *Store) AddModifier(owner, path string, cfg stats.ModifierConfig) (string, error) {
	if err := stats.ValidatePath(path); err != nil {
		return "", err
	}
	id := s.idSource()
	mod, err := stats.NewModifier(cfg, id, s.clock())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	change := s.addModifierLocked(owner, path, mod)
	s.mu.Unlock()

	s.counters.mutations.Add(1)
	s.deliver(change)
	if change.settled {
		payload := statevents.ModifierAddedPayload{
			ModifierID: id,
			Source:     mod.Source,
			Kind:       string(mod.Kind),
			Value:      mod.Value,
		}
		if !mod.ExpiresAt.IsZero() {
			payload.DurationMs = time.Until(mod.ExpiresAt).Milliseconds()
		}
		statevents.ModifierAdded(context.Background(), s.publisher, s.ownerRef(owner), path, payload)
	}
	return id, nil
}

// AddModifiers applies a batch in input order, deferring settlement until
// every insert has landed, then notifies once per distinct affected stat.
// Validation failures surface before any entry is applied.
func (s *Store) AddModifiers(specs []ModifierSpec) ([]string, error) {
	now := s.clock()
	mods := make([]stats.Modifier, len(specs))
	ids := make([]string, len(specs))
	for i, spec := range specs {
		if err := stats.ValidatePath(spec.Path); err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		id := s.idSource()
		mod, err := stats.NewModifier(spec.Config, id, now)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		mods[i] = mod
		ids[i] = id
	}

	s.mu.Lock()
	before := make(map[stackKey]float64)
	mutated := make(map[stackKey]bool)
	touched := make([]stackKey, 0, len(specs))
	for i, spec := range specs {
		key := stackKey{spec.Owner, spec.Path}
		stack := s.stackLocked(spec.Owner, spec.Path, true)
		if _, seen := before[key]; !seen {
			before[key] = stack.Value()
			touched = append(touched, key)
		}
		if res := s.applyModifierLocked(key, stack, mods[i]); res.Changed() {
			mutated[key] = true
		}
	}
	changes := make([]settledChange, 0, len(touched))
	for _, key := range touched {
		if mutated[key] {
			changes = append(changes, s.settleLocked(key, s.stacks[key], before[key]))
		}
	}
	s.mu.Unlock()

	s.counters.mutations.Add(uint64(len(specs)))
	for _, change := range changes {
		s.deliver(change)
	}
	return ids, nil
}

// addModifierLocked resolves stacking, maintains indices and scheduler
// entries, and settles the stat. A Highest-rule discard settles nothing.
func (s *Store) addModifierLocked(owner, path string, mod stats.Modifier) settledChange {
	key := stackKey{owner, path}
	stack := s.stackLocked(owner, path, true)
	before := stack.Value()
	if res := s.applyModifierLocked(key, stack, mod); !res.Changed() {
		return settledChange{}
	}
	return s.settleLocked(key, stack, before)
}

func (s *Store) applyModifierLocked(key stackKey, stack *stats.Stack, mod stats.Modifier) stats.AddResult {
	res := stack.Add(mod)
	for _, removed := range res.Removed {
		s.dropRefLocked(removed, key)
	}
	if res.Inserted {
		s.addRefLocked(mod, key)
		if !mod.ExpiresAt.IsZero() {
			s.sched.schedule(mod.ExpiresAt, key.owner, key.path, mod.ID)
		}
	}
	if res.Refreshed != "" && !mod.ExpiresAt.IsZero() {
		// The surviving modifier kept its id; the old scheduler entry
		// goes stale and the pop-time check skips it.
		s.sched.schedule(mod.ExpiresAt, key.owner, key.path, res.Refreshed)
	}
	return res
}

// RemoveModifier removes one modifier by id. It reports false when the
// stat or the id does not exist.
func (s *Store) RemoveModifier(owner, path, id string) bool {
	s.mu.Lock()
	key := stackKey{owner, path}
	stack := s.stacks[key]
	if stack == nil {
		s.mu.Unlock()
		return false
	}
	before := stack.Value()
	mod, ok := stack.Remove(id)
	var change settledChange
	if ok {
		s.dropRefLocked(mod, key)
		change = s.settleLocked(key, stack, before)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.counters.mutations.Add(1)
	s.deliver(change)
	statevents.ModifierRemoved(context.Background(), s.publisher, s.ownerRef(owner), path, statevents.ModifierRemovedPayload{Count: 1})
	return true
}

// RemoveBySource removes every modifier with the given source from one
// stat and returns the removed count.
func (s *Store) RemoveBySource(owner, path, source string) int {
	return s.removeMatching(owner, path, source, "", func(stack *stats.Stack) []stats.Modifier {
		return stack.RemoveBySource(source)
	})
}

// RemoveByTag removes every modifier carrying the given tag from one stat
// and returns the removed count.
func (s *Store) RemoveByTag(owner, path, tag string) int {
	return s.removeMatching(owner, path, "", tag, func(stack *stats.Stack) []stats.Modifier {
		return stack.RemoveByTag(tag)
	})
}

func (s *Store) removeMatching(owner, path, source, tag string, remove func(*stats.Stack) []stats.Modifier) int {
	s.mu.Lock()
	key := stackKey{owner, path}
	stack := s.stacks[key]
	if stack == nil {
		s.mu.Unlock()
		return 0
	}
	before := stack.Value()
	removed := remove(stack)
	for _, mod := range removed {
		s.dropRefLocked(mod, key)
	}
	var change settledChange
	if len(removed) > 0 {
		change = s.settleLocked(key, stack, before)
	}
	s.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	s.counters.mutations.Add(1)
	s.deliver(change)
	statevents.ModifierRemoved(context.Background(), s.publisher, s.ownerRef(owner), path, statevents.ModifierRemovedPayload{Count: len(removed), Source: source, Tag: tag})
	return len(removed)
}

// RemoveAllBySource removes every modifier with the given source across
// all of an owner's stats, proportional to the number of affected entries.
func (s *Store) RemoveAllBySource(owner, source string) int {
	return s.removeAllIndexed(owner, s.bySource, source, func(stack *stats.Stack, id string) (stats.Modifier, bool) {
		return stack.Remove(id)
	}, source, "")
}

// RemoveAllByTag removes every modifier carrying the given tag across all
// of an owner's stats.
func (s *Store) RemoveAllByTag(owner, tag string) int {
	return s.removeAllIndexed(owner, s.byTag, tag, func(stack *stats.Stack, id string) (stats.Modifier, bool) {
		return stack.Remove(id)
	}, "", tag)
}

func (s *Store) removeAllIndexed(owner string, index map[string]map[indexRef]struct{}, indexKey string, remove func(*stats.Stack, string) (stats.Modifier, bool), source, tag string) int {
	s.mu.Lock()
	refs := make([]indexRef, 0, len(index[indexKey]))
	for ref := range index[indexKey] {
		if ref.owner == owner {
			refs = append(refs, ref)
		}
	}

	count := 0
	before := make(map[stackKey]float64)
	touched := make([]stackKey, 0, len(refs))
	for _, ref := range refs {
		key := stackKey{ref.owner, ref.path}
		stack := s.stacks[key]
		if stack == nil {
			continue
		}
		if _, seen := before[key]; !seen {
			before[key] = stack.Value()
			touched = append(touched, key)
		}
		if mod, ok := remove(stack, ref.id); ok {
			s.dropRefLocked(mod, key)
			count++
		}
	}
	changes := make([]settledChange, 0, len(touched))
	for _, key := range touched {
		changes = append(changes, s.settleLocked(key, s.stacks[key], before[key]))
	}
	s.mu.Unlock()

	if count == 0 {
		return 0
	}
	s.counters.mutations.Add(1)
	for _, change := range changes {
		s.deliver(change)
	}
	statevents.ModifierRemoved(context.Background(), s.publisher, s.ownerRef(owner), "", statevents.ModifierRemovedPayload{Count: count, Source: source, Tag: tag})
	return count
}

// Value returns a stat's computed value. Absent stats read as zero.
func (s *Store) Value(owner, path string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack := s.stacks[stackKey{owner, path}]
	if stack == nil {
		return 0
	}
	return stack.Value()
}

// Base returns a stat's raw base value. Absent stats read as zero.
func (s *Store) Base(owner, path string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack := s.stacks[stackKey{owner, path}]
	if stack == nil {
		return 0
	}
	return stack.Base()
}

// Modifiers returns a copy of a stat's modifier collection.
func (s *Store) Modifiers(owner, path string) []stats.Modifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack := s.stacks[stackKey{owner, path}]
	if stack == nil {
		return nil
	}
	return stack.Modifiers()
}

// Subscribe registers a callback for settled value changes on one stat.
func (s *Store) Subscribe(owner, path string, fn func(float64)) (*Subscription, error) {
	if err := stats.ValidatePath(path); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil subscriber callback", stats.ErrInvalidConfig)
	}
	key := stackKey{owner, path}
	sub := newSubscription(fn, s.notifyBuffer, func(cancelled *Subscription) {
		s.mu.Lock()
		if set := s.subs[key]; set != nil {
			delete(set, cancelled)
			if len(set) == 0 {
				delete(s.subs, key)
			}
		}
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.subs[key] == nil {
		s.subs[key] = make(map[*Subscription]struct{})
	}
	s.subs[key][sub] = struct{}{}
	s.mu.Unlock()
	return sub, nil
}

// CleanupOwner releases every stack, index entry, and subscription for an
// owner. Scheduler entries referencing the owner go stale and are skipped
// at pop time. Idempotent: unknown owners are a no-op.
func (s *Store) CleanupOwner(owner string) {
	s.mu.Lock()
	paths := s.owners[owner]
	if paths == nil {
		s.mu.Unlock()
		return
	}
	var cancelled []*Subscription
	statCount := len(paths)
	for path := range paths {
		key := stackKey{owner, path}
		if stack := s.stacks[key]; stack != nil {
			for _, mod := range stack.Modifiers() {
				s.dropRefLocked(mod, key)
			}
		}
		delete(s.stacks, key)
		for sub := range s.subs[key] {
			cancelled = append(cancelled, sub)
		}
		delete(s.subs, key)
	}
	delete(s.owners, owner)
	s.mu.Unlock()

	for _, sub := range cancelled {
		sub.Cancel()
	}
	statevents.OwnerRemoved(context.Background(), s.publisher, s.ownerRef(owner), statevents.OwnerRemovedPayload{Stats: statCount})
}

// Owners returns the ids of every owner with at least one stat.
func (s *Store) Owners() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := make([]string, 0, len(s.owners))
	for owner := range s.owners {
		owners = append(owners, owner)
	}
	return owners
}

// Paths returns the stat paths registered for an owner.
func (s *Store) Paths(owner string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.owners[owner]))
	for path := range s.owners[owner] {
		paths = append(paths, path)
	}
	return paths
}

// Close stops the scheduler and cancels every subscription. Idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var cancelled []*Subscription
	for _, set := range s.subs {
		for sub := range set {
			cancelled = append(cancelled, sub)
		}
	}
	s.subs = make(map[stackKey]map[*Subscription]struct{})
	s.mu.Unlock()

	s.sched.shutdown()
	for _, sub := range cancelled {
		sub.Cancel()
	}
}

// expireDue is the scheduler callback: it removes each due modifier if it
// is still present, then settles each affected stat once. A modifier
// removed manually before its expiry leaves a stale entry here, skipped
// silently.
func (s *Store) expireDue(entries []expiryEntry) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	before := make(map[stackKey]float64)
	touched := make([]stackKey, 0, len(entries))
	type expired struct {
		key stackKey
		mod stats.Modifier
	}
	var evicted []expired
	for _, entry := range entries {
		key := stackKey{entry.owner, entry.path}
		stack := s.stacks[key]
		if stack == nil {
			continue
		}
		current, ok := stack.Modifier(entry.id)
		if !ok || current.ExpiresAt.IsZero() || current.ExpiresAt.After(entry.at) {
			// Already removed, refreshed to a later expiry, or made
			// permanent; this entry is stale.
			continue
		}
		if _, seen := before[key]; !seen {
			before[key] = stack.Value()
			touched = append(touched, key)
		}
		if mod, removed := stack.Remove(entry.id); removed {
			s.dropRefLocked(mod, key)
			evicted = append(evicted, expired{key: key, mod: mod})
		}
	}
	changes := make([]settledChange, 0, len(touched))
	for _, key := range touched {
		changes = append(changes, s.settleLocked(key, s.stacks[key], before[key]))
	}
	s.mu.Unlock()

	s.counters.expired.Add(uint64(len(evicted)))
	for _, change := range changes {
		s.deliver(change)
	}
	for _, e := range evicted {
		statevents.ModifierExpired(context.Background(), s.publisher, s.ownerRef(e.key.owner), e.key.path, statevents.ModifierExpiredPayload{ModifierID: e.mod.ID, Source: e.mod.Source})
	}
}

// stackLocked fetches a stack, lazily creating it and registering the
// owner path when create is set.
func (s *Store) stackLocked(owner, path string, create bool) *stats.Stack {
	key := stackKey{owner, path}
	stack := s.stacks[key]
	if stack == nil && create {
		stack = stats.NewStack()
		s.stacks[key] = stack
		if s.owners[owner] == nil {
			s.owners[owner] = make(map[string]struct{})
		}
		s.owners[owner][path] = struct{}{}
	}
	return stack
}

func (s *Store) addRefLocked(mod stats.Modifier, key stackKey) {
	ref := indexRef{owner: key.owner, path: key.path, id: mod.ID}
	if s.bySource[mod.Source] == nil {
		s.bySource[mod.Source] = make(map[indexRef]struct{})
	}
	s.bySource[mod.Source][ref] = struct{}{}
	for _, tag := range mod.Tags {
		if s.byTag[tag] == nil {
			s.byTag[tag] = make(map[indexRef]struct{})
		}
		s.byTag[tag][ref] = struct{}{}
	}
}

func (s *Store) dropRefLocked(mod stats.Modifier, key stackKey) {
	ref := indexRef{owner: key.owner, path: key.path, id: mod.ID}
	if set := s.bySource[mod.Source]; set != nil {
		delete(set, ref)
		if len(set) == 0 {
			delete(s.bySource, mod.Source)
		}
	}
	for _, tag := range mod.Tags {
		if set := s.byTag[tag]; set != nil {
			delete(set, ref)
			if len(set) == 0 {
				delete(s.byTag, tag)
			}
		}
	}
}

// settleLocked recomputes the stat and captures everything deliver needs
// once the lock is released.
func (s *Store) settleLocked(key stackKey, stack *stats.Stack, before float64) settledChange {
	if stack == nil {
		return settledChange{}
	}
	after := stack.Value()
	s.counters.recomputes.Add(1)
	change := settledChange{
		key:      key,
		value:    after,
		settled:  true,
		changed:  after != before,
		snapshot: stack.Snapshot(),
	}
	if change.changed {
		for sub := range s.subs[key] {
			change.subs = append(change.subs, sub)
		}
	}
	return change
}

// deliver fans a settled change out to subscribers and the sync callback.
// Runs without the store lock; subscriber queues never block the caller.
func (s *Store) deliver(change settledChange) {
	if !change.settled {
		return
	}
	if change.changed {
		for _, sub := range change.subs {
			if sub.notify(change.value) {
				s.counters.notifications.Add(1)
			} else {
				s.counters.droppedNotifies.Add(1)
			}
		}
	}
	if s.syncFn != nil {
		s.syncFn(change.key.owner, change.key.path, change.snapshot)
		s.counters.syncs.Add(1)
		statevents.SyncPublished(context.Background(), s.publisher, s.ownerRef(change.key.owner), change.key.path, statevents.SyncPublishedPayload{Value: change.value, Modifiers: len(change.snapshot.Modifiers)})
	}
}

func (s *Store) ownerRef(owner string) logging.EntityRef {
	return logging.EntityRef{ID: owner, Kind: logging.EntityKindOwner}
}

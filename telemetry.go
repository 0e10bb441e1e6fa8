package statforge

import "sync/atomic"

type storeCounters struct {
	mutations       atomic.Uint64
	recomputes      atomic.Uint64
	notifications   atomic.Uint64
	droppedNotifies atomic.Uint64
	expired         atomic.Uint64
	syncs           atomic.Uint64
}

// StoreStats is a point-in-time read of the store's counters.
type StoreStats struct {
	Mutations            uint64 `json:"mutations"`
	Recomputes           uint64 `json:"recomputes"`
	Notifications        uint64 `json:"notifications"`
	DroppedNotifications uint64 `json:"droppedNotifications"`
	ExpiredModifiers     uint64 `json:"expiredModifiers"`
	SyncsPublished       uint64 `json:"syncsPublished"`
	PendingExpiryEntries int    `json:"pendingExpiryEntries"`
}

// Stats snapshots the store's telemetry counters.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Mutations:            s.counters.mutations.Load(),
		Recomputes:           s.counters.recomputes.Load(),
		Notifications:        s.counters.notifications.Load(),
		DroppedNotifications: s.counters.droppedNotifies.Load(),
		ExpiredModifiers:     s.counters.expired.Load(),
		SyncsPublished:       s.counters.syncs.Load(),
		PendingExpiryEntries: s.sched.pending(),
	}
}

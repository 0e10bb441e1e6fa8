package ws

import (
	"encoding/json"
	"log"
	"sync"

	"statforge"
	"statforge/stats"
)

// Registry fans settled stat snapshots out to the observer sessions
// following each owner. Publish matches statforge.SyncFunc so it can be
// wired directly into a store's OnSync hook.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]map[*session]struct{}
	logger   *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		sessions: make(map[string]map[*session]struct{}),
		logger:   logger,
	}
}

func (r *Registry) Publish(owner, path string, snapshot stats.Snapshot) {
	r.mu.Lock()
	set := r.sessions[owner]
	if len(set) == 0 {
		r.mu.Unlock()
		return
	}
	targets := make([]*session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	data, err := json.Marshal(statforge.NewSyncMessage(owner, path, snapshot))
	if err != nil {
		r.logger.Printf("failed to marshal sync for %s %s: %v", owner, path, err)
		return
	}
	for _, s := range targets {
		if !s.enqueue(data) {
			r.logger.Printf("dropping slow observer of %s", owner)
			r.remove(s)
			s.close()
		}
	}
}

func (r *Registry) add(s *session) {
	r.mu.Lock()
	set := r.sessions[s.owner]
	if set == nil {
		set = make(map[*session]struct{})
		r.sessions[s.owner] = set
	}
	set[s] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) remove(s *session) {
	r.mu.Lock()
	if set := r.sessions[s.owner]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(r.sessions, s.owner)
		}
	}
	r.mu.Unlock()
}

// ObserverCount reports how many sessions currently follow the owner.
func (r *Registry) ObserverCount(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[owner])
}

package statforge

import "statforge/stats"

// Snapshots returns a point-in-time copy of every stat snapshot for an
// owner, keyed by stat path. Used to seed a newly attached observer; no
// side effects.
func (s *Store) Snapshots(owner string) map[string]stats.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := s.owners[owner]
	if len(paths) == 0 {
		return nil
	}
	snapshots := make(map[string]stats.Snapshot, len(paths))
	for path := range paths {
		if stack := s.stacks[stackKey{owner, path}]; stack != nil {
			snapshots[path] = stack.Snapshot()
		}
	}
	return snapshots
}

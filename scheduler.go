package statforge

import (
	"container/heap"
	"sync"
	"time"
)

// expiryEntry marks one modifier's scheduled eviction. Entries are never
// cancelled eagerly; the pop-time existence check in the store makes stale
// entries harmless.
type expiryEntry struct {
	at    time.Time
	owner string
	path  string
	id    string
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// scheduler evicts time-limited modifiers from the store. A single
// goroutine sleeps until the earliest scheduled expiry instead of polling;
// scheduling an earlier entry re-arms the timer through the wake channel.
type scheduler struct {
	mu       sync.Mutex
	entries  expiryHeap
	wake     chan struct{}
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	clock    func() time.Time
	expire   func([]expiryEntry)
}

func newScheduler(clock func() time.Time, expire func([]expiryEntry)) *scheduler {
	if clock == nil {
		clock = time.Now
	}
	sc := &scheduler{
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
		clock:    clock,
		expire:   expire,
	}
	heap.Init(&sc.entries)
	go sc.run()
	return sc
}

// schedule registers an eviction for the given modifier at the given time.
func (sc *scheduler) schedule(at time.Time, owner, path, id string) {
	if at.IsZero() {
		return
	}
	sc.mu.Lock()
	heap.Push(&sc.entries, expiryEntry{at: at, owner: owner, path: path, id: id})
	earliest := sc.entries[0].at
	sc.mu.Unlock()

	if earliest.Equal(at) {
		select {
		case sc.wake <- struct{}{}:
		default:
		}
	}
}

func (sc *scheduler) run() {
	defer close(sc.finished)
	for {
		now := sc.clock()

		sc.mu.Lock()
		var due []expiryEntry
		for len(sc.entries) > 0 && !sc.entries[0].at.After(now) {
			due = append(due, heap.Pop(&sc.entries).(expiryEntry))
		}
		var wait time.Duration
		armed := len(sc.entries) > 0
		if armed {
			wait = sc.entries[0].at.Sub(now)
		}
		sc.mu.Unlock()

		if len(due) > 0 {
			sc.expire(due)
		}

		if armed {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-sc.wake:
				timer.Stop()
			case <-sc.stop:
				timer.Stop()
				return
			}
		} else {
			select {
			case <-sc.wake:
			case <-sc.stop:
				return
			}
		}
	}
}

// shutdown stops the goroutine and waits for it to exit. Idempotent.
func (sc *scheduler) shutdown() {
	sc.stopOnce.Do(func() {
		close(sc.stop)
	})
	<-sc.finished
}

// pending reports the number of queued entries, stale ones included.
func (sc *scheduler) pending() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.entries)
}

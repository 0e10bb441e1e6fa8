package statforge

import (
	"sync"
	"sync/atomic"
)

// Subscription delivers settled stat values to a callback without ever
// blocking the mutator. Deliveries queue in a bounded channel drained by a
// dedicated goroutine; a full queue drops the value and counts the drop.
type Subscription struct {
	fn      func(float64)
	values  chan float64
	done    chan struct{}
	once    sync.Once
	remove  func(*Subscription)
	dropped atomic.Uint64
}

func newSubscription(fn func(float64), buffer int, remove func(*Subscription)) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{
		fn:     fn,
		values: make(chan float64, buffer),
		done:   make(chan struct{}),
		remove: remove,
	}
	go sub.pump()
	return sub
}

func (sub *Subscription) pump() {
	for {
		select {
		case value := <-sub.values:
			sub.fn(value)
		case <-sub.done:
			// Deliver anything queued before cancellation landed.
			for {
				select {
				case value := <-sub.values:
					sub.fn(value)
				default:
					return
				}
			}
		}
	}
}

// notify enqueues a settled value. Never blocks.
func (sub *Subscription) notify(value float64) bool {
	select {
	case <-sub.done:
		return false
	default:
	}
	select {
	case sub.values <- value:
		return true
	default:
		sub.dropped.Add(1)
		return false
	}
}

// Cancel stops further delivery. Queued deliveries still drain; Cancel is
// safe to call more than once.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		if sub.remove != nil {
			sub.remove(sub)
		}
		close(sub.done)
	})
}

// Dropped reports how many notifications were discarded because the
// subscriber fell behind.
func (sub *Subscription) Dropped() uint64 {
	return sub.dropped.Load()
}

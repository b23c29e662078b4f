package events

import (
	"sync"
	"sync/atomic"

	"github.com/kelindar/event"
)

// DefaultReliableLimit caps the events queued by ForwardReliable for one
// subscription before it gives up and asks the client to resync.
const DefaultReliableLimit = 4096

// Subscription merges several event types into one SSE select loop.
//
// Types added with Forward go through C and are dropped while C is full,
// so a slow client never stalls the dispatcher; Dropped counts them.
// Types added with ForwardReliable are queued without loss and announced
// on Ready. If that queue overflows it is discarded and Pending reports a
// resync, after which the client should be sent a fresh snapshot.
type Subscription struct {
	C chan any

	mu      sync.Mutex
	unsubs  []func()
	queue   []any
	resync  bool
	limit   int
	ready   chan struct{}
	dropped atomic.Uint64
}

// NewSubscription creates a subscription buffering up to size lossy events.
func NewSubscription(size int) *Subscription {
	return &Subscription{
		C:     make(chan any, size),
		limit: DefaultReliableLimit,
		ready: make(chan struct{}, 1),
	}
}

// Forward adds events of type T from bus to s.C.
func Forward[T Event](bus *Bus, s *Subscription) {
	s.add(event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case s.C <- e:
		default:
			s.dropped.Add(1)
		}
	}))
}

// ForwardReliable adds events of type T from bus to the lossless queue.
func ForwardReliable[T Event](bus *Bus, s *Subscription) {
	s.add(event.Subscribe(bus.dispatcher, func(e T) {
		s.mu.Lock()
		if len(s.queue) >= s.limit {
			s.queue = nil
			s.resync = true
			s.dropped.Add(1)
		} else if !s.resync {
			s.queue = append(s.queue, e)
		}
		s.mu.Unlock()

		select {
		case s.ready <- struct{}{}:
		default:
		}
	}))
}

func (s *Subscription) add(unsub func()) {
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
}

// Ready receives a value whenever the reliable queue has something new.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Pending takes every queued reliable event in publish order. resync is
// true when events were lost to an overflow; the queue restarts empty.
func (s *Subscription) Pending() (pending []any, resync bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, resync = s.queue, s.resync
	s.queue, s.resync = nil, false
	return pending, resync
}

// Dropped returns the number of events lost because C was full or the
// reliable queue overflowed.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close removes every forwarding. C is left open; pending events may
// still be read.
func (s *Subscription) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

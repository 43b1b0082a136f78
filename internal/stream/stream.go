// Package stream provides push-based observables with ordered delivery.
//
// Subject replays its latest value to every new subscriber and then delivers
// each subsequent change. Feed delivers only values published after a
// subscriber joined. Each subscriber owns an unbounded in-order queue drained
// by its own goroutine, so a slow consumer never blocks publishers or other
// subscribers.
package stream

import (
	"sync"
)

// Subscription is a live view of a Subject or Feed.
type Subscription[T any] struct {
	out       chan T
	notify    chan struct{}
	abort     chan struct{}
	abortOnce sync.Once
	detach    func()

	mu      sync.Mutex
	queue   []T
	ended   bool
	aborted bool
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Close unsubscribes. Values not yet received are discarded.
func (s *Subscription[T]) Close() {
	s.abortOnce.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		s.mu.Lock()
		s.aborted = true
		s.queue = nil
		s.mu.Unlock()
		close(s.abort)
	})
}

func newSubscription[T any]() *Subscription[T] {
	s := &Subscription[T]{
		out:    make(chan T),
		notify: make(chan struct{}, 1),
		abort:  make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.ended || s.aborted {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.wake()
}

// end stops accepting values; already queued values are still delivered.
func (s *Subscription[T]) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) next() (T, bool) {
	var zero T
	for {
		s.mu.Lock()
		if s.aborted {
			s.mu.Unlock()
			return zero, false
		}
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, true
		}
		if s.ended {
			s.mu.Unlock()
			return zero, false
		}
		s.mu.Unlock()
		select {
		case <-s.notify:
		case <-s.abort:
		}
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		v, ok := s.next()
		if !ok {
			return
		}
		select {
		case s.out <- v:
		case <-s.abort:
			return
		}
	}
}

type hub[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// addWith registers a subscriber. The replay func, when non-nil, runs under
// the hub lock so the replayed value and later broadcasts cannot interleave.
func (h *hub[T]) addWith(replay func() *T) *Subscription[T] {
	sub := newSubscription[T]()
	h.mu.Lock()
	defer h.mu.Unlock()
	if replay != nil {
		if initial := replay(); initial != nil {
			sub.push(*initial)
		}
	}
	if h.closed {
		sub.end()
		return sub
	}
	id := h.nextID
	h.nextID++
	if h.subs == nil {
		h.subs = make(map[uint64]*Subscription[T])
	}
	h.subs[id] = sub
	sub.detach = func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return sub
}

// broadcast must be called with h.mu held.
func (h *hub[T]) broadcast(v T) {
	for _, sub := range h.subs {
		sub.push(v)
	}
}

func (h *hub[T]) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub[T]) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()
	for _, sub := range subs {
		sub.end()
	}
}

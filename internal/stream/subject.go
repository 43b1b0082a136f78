package stream

// Subject holds a current value and replays it to new subscribers.
type Subject[T any] struct {
	hub   hub[T]
	value T
}

// NewSubject creates a Subject seeded with initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

// Value returns the current value.
func (s *Subject[T]) Value() T {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.value
}

// Publish replaces the current value and delivers it to every subscriber.
func (s *Subject[T]) Publish(v T) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.hub.closed {
		return
	}
	s.value = v
	s.hub.broadcast(v)
}

// Update applies fn to the current value atomically and publishes the result.
// When fn reports no change, nothing is delivered.
func (s *Subject[T]) Update(fn func(current T) (T, bool)) T {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	next, changed := fn(s.value)
	if !changed || s.hub.closed {
		return s.value
	}
	s.value = next
	s.hub.broadcast(next)
	return next
}

// Subscribe returns a subscription that first yields the current value.
func (s *Subject[T]) Subscribe() *Subscription[T] {
	return s.hub.addWith(func() *T {
		v := s.value
		return &v
	})
}

// SubscriberCount reports active subscriptions.
func (s *Subject[T]) SubscriberCount() int {
	return s.hub.count()
}

// Close ends all subscriptions after they drain; later publishes are ignored.
func (s *Subject[T]) Close() {
	s.hub.close()
}

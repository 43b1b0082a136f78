package stream

// Feed is a broadcast stream without replay.
type Feed[T any] struct {
	hub hub[T]
}

// NewFeed creates an empty Feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{}
}

// Send delivers v to current subscribers and reports how many received it.
func (f *Feed[T]) Send(v T) int {
	f.hub.mu.Lock()
	defer f.hub.mu.Unlock()
	if f.hub.closed {
		return 0
	}
	f.hub.broadcast(v)
	return len(f.hub.subs)
}

// Subscribe returns a subscription receiving values sent from now on.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	return f.hub.addWith(nil)
}

// SubscriberCount reports active subscriptions.
func (f *Feed[T]) SubscriberCount() int {
	return f.hub.count()
}

// Close ends all subscriptions after they drain.
func (f *Feed[T]) Close() {
	f.hub.close()
}

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) names() []EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventName, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	d := NewAsyncDispatcher(nil, 16)
	rec := &recorder{}
	d.Subscribe(EventAny, rec.handle)

	d.Publish(context.Background(), Event{Name: EventLogin})
	d.Publish(context.Background(), Event{Name: EventTicketCreated})
	d.Publish(context.Background(), Event{Name: EventLogout})
	d.Close()

	assert.Equal(t, []EventName{EventLogin, EventTicketCreated, EventLogout}, rec.names())
}

func TestDispatcherFiltersByName(t *testing.T) {
	d := NewAsyncDispatcher(nil, 16)
	rec := &recorder{}
	d.Subscribe(EventMessageSent, rec.handle)

	d.Publish(context.Background(), Event{Name: EventLogin})
	d.Publish(context.Background(), Event{Name: EventMessageSent})
	d.Close()

	assert.Equal(t, []EventName{EventMessageSent}, rec.names())
}

func TestPublishNeverBlocksOnSlowObserver(t *testing.T) {
	d := NewAsyncDispatcher(nil, 2)
	release := make(chan struct{})
	d.Subscribe(EventAny, func(context.Context, Event) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Publish(context.Background(), Event{Name: EventPushReceived})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked behind a slow observer")
	}
	close(release)
	d.Close()
}

func TestPanickingObserverDoesNotStopDelivery(t *testing.T) {
	d := NewAsyncDispatcher(nil, 8)
	rec := &recorder{}
	d.Subscribe(EventAny, func(context.Context, Event) { panic("host bug") })
	d.Subscribe(EventAny, rec.handle)

	d.Publish(context.Background(), Event{Name: EventLogin})
	d.Publish(context.Background(), Event{Name: EventLogout})
	d.Close()

	assert.Len(t, rec.names(), 2)
}

func TestUnsubscribe(t *testing.T) {
	d := NewAsyncDispatcher(nil, 8)
	rec := &recorder{}
	unsubscribe := d.Subscribe(EventAny, rec.handle)
	unsubscribe()

	d.Publish(context.Background(), Event{Name: EventLogin})
	d.Close()
	assert.Empty(t, rec.names())
}

func TestTrackerStampsIdentity(t *testing.T) {
	d := NewAsyncDispatcher(nil, 8)
	rec := &recorder{}
	d.Subscribe(EventAny, rec.handle)

	tracker := NewTracker(d, "1.4.0")
	tracker.SetIdentity(func() (string, string) { return "cus_1", "host-42" })
	tracker.Track(context.Background(), EventTicketCreated, map[string]any{"ticket_id": "t-1"})
	d.Close()

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "1.4.0", e.SDKVersion)
	assert.Equal(t, "cus_1", e.CustomerID)
	assert.Equal(t, "host-42", e.OriginalCustomerID)
	assert.Equal(t, "t-1", e.Properties["ticket_id"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *Tracker
	tracker.Track(context.Background(), EventLogin, nil)
	NewTracker(nil, "x").Track(context.Background(), EventLogin, nil)
}

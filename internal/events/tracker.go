package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IdentityFunc reports the customer the SDK currently acts for.
type IdentityFunc func() (customerID, originalCustomerID string)

// Tracker stamps events with identity and SDK version before publishing.
type Tracker struct {
	dispatcher Dispatcher
	sdkVersion string
	identity   IdentityFunc
	now        func() time.Time
}

// NewTracker builds a tracker. A nil dispatcher makes Track a no-op.
func NewTracker(dispatcher Dispatcher, sdkVersion string) *Tracker {
	return &Tracker{dispatcher: dispatcher, sdkVersion: sdkVersion, now: time.Now}
}

// SetIdentity installs the identity source; it is read at every Track call.
func (t *Tracker) SetIdentity(fn IdentityFunc) {
	if t == nil {
		return
	}
	t.identity = fn
}

// Track publishes a named event. It never blocks or fails the caller.
func (t *Tracker) Track(ctx context.Context, name EventName, props map[string]any) {
	if t == nil || t.dispatcher == nil {
		return
	}
	event := Event{
		ID:         uuid.NewString(),
		Name:       name,
		Properties: props,
		Timestamp:  t.now(),
		SDKVersion: t.sdkVersion,
	}
	if t.identity != nil {
		event.CustomerID, event.OriginalCustomerID = t.identity()
	}
	t.dispatcher.Publish(ctx, event)
}

package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/support-client/internal/api/client"
	"github.com/spec-kit/support-client/internal/events"
	"github.com/spec-kit/support-client/internal/stream"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// UnreadTracker keeps the live unread message count.
type UnreadTracker struct {
	api     client.APIClient
	tracker *events.Tracker
	logger  *zap.Logger
	count   *stream.Subject[int]
	group   singleflight.Group

	mu sync.Mutex
	// fetchSeq numbers network refreshes; applied is the newest one written.
	fetchSeq uint64
	applied  uint64
	// unsynced counts local reads whose receipt the backend has not answered.
	unsynced int
	epoch    uint64
}

// NewUnreadTracker starts at zero.
func NewUnreadTracker(api client.APIClient, tracker *events.Tracker, logger *zap.Logger) *UnreadTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnreadTracker{
		api:     api,
		tracker: tracker,
		logger:  logger,
		count:   stream.NewSubject(0),
	}
}

// Value returns the current count.
func (u *UnreadTracker) Value() int {
	return u.count.Value()
}

// Watch replays the current count and every change.
func (u *UnreadTracker) Watch() *stream.Subscription[int] {
	return u.count.Subscribe()
}

// Refresh fetches the count from the backend. Callers arriving while a
// refresh is in flight share its result.
func (u *UnreadTracker) Refresh(ctx context.Context) (int, error) {
	ch := u.group.DoChan("unread", func() (any, error) {
		return u.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return u.Value(), res.Err
		}
		return res.Val.(int), nil
	case <-ctx.Done():
		return u.Value(), apperrors.NewNetworkError(ctx.Err())
	}
}

// Foreground refreshes in the background when the host app becomes active.
// Failures are logged and leave the count unchanged.
func (u *UnreadTracker) Foreground(ctx context.Context) {
	go func() {
		if _, err := u.Refresh(ctx); err != nil {
			u.logger.Warn("refresh unread count", zap.Error(err))
		}
	}()
}

// Decrement lowers the count after n messages were read locally. Until the
// returned synced func is called the reads are unsynced and every refresh
// subtracts them from the backend total. Call synced once the backend has
// answered the read receipt, whatever the outcome; it is idempotent.
//
// Best effort: a receipt answered while a refresh is in flight is trusted to
// be reflected in that refresh, so the count may read high until the next one.
func (u *UnreadTracker) Decrement(n int) (synced func()) {
	if n <= 0 {
		return func() {}
	}
	// Held across the update so a refresh cannot publish in between.
	u.mu.Lock()
	u.unsynced += n
	epoch := u.epoch
	u.count.Update(func(current int) (int, bool) {
		next := clampUnread(current - n)
		return next, next != current
	})
	u.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			u.mu.Lock()
			defer u.mu.Unlock()
			if u.epoch == epoch {
				u.unsynced = clampUnread(u.unsynced - n)
			}
		})
	}
}

// Reset zeroes the count and discards refreshes still in flight.
func (u *UnreadTracker) Reset() {
	u.mu.Lock()
	u.epoch++
	u.unsynced = 0
	u.mu.Unlock()
	u.group.Forget("unread")
	u.count.Publish(0)
}

// Close ends every subscription.
func (u *UnreadTracker) Close() {
	u.count.Close()
}

func (u *UnreadTracker) fetch(ctx context.Context) (int, error) {
	u.mu.Lock()
	u.fetchSeq++
	seq := u.fetchSeq
	epoch := u.epoch
	u.mu.Unlock()

	previews, err := u.api.GetTickets(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range previews {
		total += p.UnreadCount
	}

	u.mu.Lock()
	if epoch != u.epoch || seq < u.applied {
		u.mu.Unlock()
		return u.Value(), nil
	}
	u.applied = seq
	value := clampUnread(total - u.unsynced)
	u.count.Publish(value)
	u.mu.Unlock()

	u.tracker.Track(ctx, events.EventUnreadRefreshed, map[string]any{"count": value})
	return value, nil
}

func clampUnread(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

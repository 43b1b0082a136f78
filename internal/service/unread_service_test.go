package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-client/internal/api/client"
	"github.com/spec-kit/support-client/internal/domain"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

func previewsWithUnread(counts ...int) []domain.TicketPreview {
	out := make([]domain.TicketPreview, len(counts))
	for i, c := range counts {
		out[i] = domain.TicketPreview{ID: string(rune('a' + i)), UnreadCount: c}
	}
	return out
}

func TestUnreadRefreshSumsPreviews(t *testing.T) {
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			return previewsWithUnread(2, 0, 3), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)
	sub := u.Watch()
	defer sub.Close()
	assert.Equal(t, 0, <-sub.C())

	n, err := u.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, <-sub.C())
	assert.Equal(t, 5, u.Value())
}

func TestUnreadConcurrentRefreshesCoalesce(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			calls.Add(1)
			<-release
			return previewsWithUnread(4), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = u.Refresh(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 4, r)
	}
}

func TestUnreadNeverNegative(t *testing.T) {
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			return previewsWithUnread(2), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)
	_, err := u.Refresh(context.Background())
	require.NoError(t, err)

	u.Decrement(1)
	assert.Equal(t, 1, u.Value())
	u.Decrement(10)
	assert.Equal(t, 0, u.Value())
	u.Decrement(-3)
	assert.Equal(t, 0, u.Value())
}

func TestUnreadRefreshAccountsForLocalReads(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			close(started)
			<-release
			// Counted before the local read reached the server.
			return previewsWithUnread(5), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)

	done := make(chan int)
	go func() {
		n, _ := u.Refresh(context.Background())
		done <- n
	}()
	<-started
	u.Decrement(2)
	close(release)

	assert.Equal(t, 3, <-done)
	assert.Equal(t, 3, u.Value())
}

func TestUnreadResetDiscardsInFlightRefresh(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			close(started)
			<-release
			return previewsWithUnread(9), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)

	done := make(chan struct{})
	go func() {
		_, _ = u.Refresh(context.Background())
		close(done)
	}()
	<-started
	u.Reset()
	close(release)
	<-done

	assert.Equal(t, 0, u.Value())
}

func TestUnreadRefreshErrorKeepsValue(t *testing.T) {
	fail := false
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			if fail {
				return nil, apperrors.NewServerError(503, "down")
			}
			return previewsWithUnread(2), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)
	_, err := u.Refresh(context.Background())
	require.NoError(t, err)

	fail = true
	n, err := u.Refresh(context.Background())
	assert.True(t, apperrors.IsServer(err))
	assert.Equal(t, 2, n)
}

func TestUnreadForegroundRefreshes(t *testing.T) {
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			return previewsWithUnread(1, 1), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)
	u.Foreground(context.Background())
	assert.Eventually(t, func() bool { return u.Value() == 2 }, time.Second, 5*time.Millisecond)
}

func TestUnreadRefreshTrustsAnsweredReceipts(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			close(started)
			<-release
			// The receipt landed before this list was built.
			return previewsWithUnread(3), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)

	done := make(chan int)
	go func() {
		n, _ := u.Refresh(context.Background())
		done <- n
	}()
	<-started
	synced := u.Decrement(2)
	synced()
	close(release)

	assert.Equal(t, 3, <-done)
	assert.Equal(t, 3, u.Value())
}

func TestUnreadRefreshSubtractsUnsyncedReadsFromBefore(t *testing.T) {
	serverTotal := 5
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			return previewsWithUnread(serverTotal), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)
	_, err := u.Refresh(context.Background())
	require.NoError(t, err)

	synced := u.Decrement(2)
	n, err := u.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n, "receipt still in flight")

	serverTotal = 3
	synced()
	synced()
	n, err = u.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUnreadResetForgetsUnsyncedReads(t *testing.T) {
	api := &client.Mock{
		GetTicketsFunc: func(ctx context.Context) ([]domain.TicketPreview, error) {
			return previewsWithUnread(4), nil
		},
	}
	u := NewUnreadTracker(api, nil, nil)
	synced := u.Decrement(3)
	u.Reset()
	synced()

	n, err := u.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/repository"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

type senderFunc func(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (domain.Message, error)

func (f senderFunc) Send(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (domain.Message, error) {
	return f(ctx, ticketID, text, attachments)
}

func TestSendOrQueueDelivers(t *testing.T) {
	sender := senderFunc(func(ctx context.Context, ticketID, text string, _ []domain.Attachment) (domain.Message, error) {
		return domain.Message{ID: "m-1", TicketID: ticketID, Text: text}, nil
	})
	o := NewOutbox(repository.NewMemoryOutboxRepository(), sender, nil, nil)

	msg, queued, err := o.SendOrQueue(context.Background(), "t-1", "hi", nil)
	require.NoError(t, err)
	assert.False(t, queued)
	require.NotNil(t, msg)
	assert.Equal(t, "m-1", msg.ID)
}

func TestSendOrQueueParksOnNetworkError(t *testing.T) {
	sender := senderFunc(func(ctx context.Context, _, _ string, _ []domain.Attachment) (domain.Message, error) {
		return domain.Message{}, apperrors.NewNetworkError(errors.New("connection refused"))
	})
	o := NewOutbox(repository.NewMemoryOutboxRepository(), sender, nil, nil)

	atts := []domain.Attachment{{Name: "a.txt", MimeType: "text/plain", Data: []byte("x")}}
	msg, queued, err := o.SendOrQueue(context.Background(), "t-1", "  offline  ", atts)
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Nil(t, msg)

	pending, err := o.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t-1", pending[0].TicketID)
	assert.Equal(t, "offline", pending[0].Text)
	assert.Len(t, pending[0].Attachments, 1)
	assert.Zero(t, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, "connection refused")

	require.NoError(t, o.Clear(context.Background()))
	pending, err = o.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSendOrQueuePropagatesOtherErrors(t *testing.T) {
	tests := []error{
		apperrors.NewValidationError("empty", nil),
		apperrors.NewUnauthorized("bad key"),
		apperrors.NewServerError(500, "boom"),
		apperrors.NewRateLimited(0),
	}
	for _, want := range tests {
		sender := senderFunc(func(ctx context.Context, _, _ string, _ []domain.Attachment) (domain.Message, error) {
			return domain.Message{}, want
		})
		o := NewOutbox(nil, sender, nil, nil)
		_, queued, err := o.SendOrQueue(context.Background(), "t-1", "hi", nil)
		assert.Equal(t, apperrors.CodeOf(want), apperrors.CodeOf(err))
		assert.False(t, queued)

		pending, _ := o.Pending(context.Background())
		assert.Empty(t, pending)
	}
}

func TestSendOrQueueQueuesBehindEarlierEntries(t *testing.T) {
	var sent []string
	offline := true
	sender := senderFunc(func(ctx context.Context, ticketID, text string, _ []domain.Attachment) (domain.Message, error) {
		sent = append(sent, text)
		if offline {
			return domain.Message{}, apperrors.NewNetworkError(errors.New("offline"))
		}
		return domain.Message{ID: "srv-" + text, TicketID: ticketID, Text: text}, nil
	})
	o := NewOutbox(repository.NewMemoryOutboxRepository(), sender, nil, nil)
	ctx := context.Background()

	_, queued, err := o.SendOrQueue(ctx, "t-1", "first", nil)
	require.NoError(t, err)
	assert.True(t, queued)

	offline = false
	msg, queued, err := o.SendOrQueue(ctx, "t-1", "second", nil)
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Nil(t, msg)
	assert.Equal(t, []string{"first"}, sent, "second must not overtake the queued first")

	// Other tickets are not held back.
	msg, queued, err = o.SendOrQueue(ctx, "t-2", "elsewhere", nil)
	require.NoError(t, err)
	assert.False(t, queued)
	require.NotNil(t, msg)

	pending, err := o.PendingFor(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].Text)
	assert.Equal(t, "second", pending[1].Text)
	assert.True(t, pending[1].CreatedAt.After(pending[0].CreatedAt))
}

func TestQueuedEntriesStayOrderedWithFrozenClock(t *testing.T) {
	sender := senderFunc(func(ctx context.Context, _, _ string, _ []domain.Attachment) (domain.Message, error) {
		return domain.Message{}, apperrors.NewNetworkError(errors.New("offline"))
	})
	o := NewOutbox(repository.NewMemoryOutboxRepository(), sender, nil, nil)
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return frozen }
	ctx := context.Background()

	texts := []string{"a", "b", "c", "d", "e"}
	for _, text := range texts {
		_, queued, err := o.SendOrQueue(ctx, "t-1", text, nil)
		require.NoError(t, err)
		require.True(t, queued)
	}

	pending, err := o.Pending(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(pending))
	for _, e := range pending {
		got = append(got, e.Text)
	}
	assert.Equal(t, texts, got)
}

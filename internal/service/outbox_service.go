package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/events"
	"github.com/spec-kit/support-client/internal/repository"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// MessageSender delivers one message; *store.Store satisfies it.
type MessageSender interface {
	Send(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (domain.Message, error)
}

// Outbox sends messages and parks them for replay when the network is down.
type Outbox struct {
	repo    repository.OutboxRepository
	sender  MessageSender
	tracker *events.Tracker
	logger  *zap.Logger
	now     func() time.Time
}

// NewOutbox creates the outbox service.
func NewOutbox(repo repository.OutboxRepository, sender MessageSender, tracker *events.Tracker, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if repo == nil {
		repo = repository.NewMemoryOutboxRepository()
	}
	return &Outbox{repo: repo, sender: sender, tracker: tracker, logger: logger, now: time.Now}
}

// SendOrQueue sends a message. On a network failure the message is stored
// for replay and queued is true. Every other error is returned. While older
// messages for the ticket are still queued the new one is queued behind them
// without a send attempt, so replay keeps submission order.
func (o *Outbox) SendOrQueue(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (msg *domain.Message, queued bool, err error) {
	ahead, err := o.PendingFor(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}
	if len(ahead) > 0 {
		if err := o.enqueue(ctx, ticketID, text, attachments, ahead, "queued behind earlier messages"); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	sent, err := o.sender.Send(ctx, ticketID, text, attachments)
	if err == nil {
		return &sent, false, nil
	}
	if !apperrors.IsNetwork(err) {
		return nil, false, err
	}
	if qerr := o.enqueue(ctx, ticketID, text, attachments, nil, err.Error()); qerr != nil {
		return nil, false, err
	}
	return nil, true, nil
}

// PendingFor lists the queued entries of one ticket, oldest first.
func (o *Outbox) PendingFor(ctx context.Context, ticketID string) ([]domain.OutboxEntry, error) {
	entries, err := o.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

// enqueue stores a new entry. Its CreatedAt is kept strictly after every
// entry in ahead so ordering never falls back to the ID tie-break.
func (o *Outbox) enqueue(ctx context.Context, ticketID, text string, attachments []domain.Attachment, ahead []domain.OutboxEntry, reason string) error {
	now := o.now()
	created := now
	for _, e := range ahead {
		if !created.After(e.CreatedAt) {
			created = e.CreatedAt.Add(time.Nanosecond)
		}
	}
	entry := domain.OutboxEntry{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		Text:          strings.TrimSpace(text),
		Attachments:   attachments,
		CreatedAt:     created,
		NextAttemptAt: now,
		LastError:     reason,
	}
	if err := o.repo.Enqueue(ctx, entry); err != nil {
		o.logger.Error("enqueue outbox entry", zap.String("ticket_id", ticketID), zap.Error(err))
		return err
	}
	o.logger.Info("message queued for replay",
		zap.String("entry_id", entry.ID),
		zap.String("ticket_id", ticketID),
		zap.Int("ahead", len(ahead)))
	o.tracker.Track(ctx, events.EventOutboxQueued, map[string]any{"ticket_id": ticketID})
	return nil
}

// Pending lists queued entries, oldest first.
func (o *Outbox) Pending(ctx context.Context) ([]domain.OutboxEntry, error) {
	return o.repo.List(ctx)
}

// Clear drops every queued entry.
func (o *Outbox) Clear(ctx context.Context) error {
	return o.repo.Clear(ctx)
}

// Repository exposes the backing store to the replay worker.
func (o *Outbox) Repository() repository.OutboxRepository {
	return o.repo
}

// Sender exposes the delivery path to the replay worker.
func (o *Outbox) Sender() MessageSender {
	return o.sender
}

package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/api/client"
	"github.com/spec-kit/support-client/internal/domain"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// LocalIDPrefix marks IDs of optimistic messages that the server has not confirmed.
const LocalIDPrefix = "local-"

// IsLocalID reports whether id belongs to an unconfirmed optimistic message.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// CreateTicket opens a conversation and caches the result.
func (s *Store) CreateTicket(ctx context.Context, input client.CreateTicketInput) (domain.Ticket, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	ticket, err := s.api.CreateTicket(ctx, input)
	if err != nil {
		return domain.Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return ticket.Clone(), nil
	}
	s.mergeLocked(*ticket)
	return s.entries[ticket.ID].ticket.Clone(), nil
}

// Send appends an optimistic message and delivers it. Sends to the same
// ticket are delivered one at a time in submission order; sends to
// different tickets run independently. On failure the optimistic message is
// removed and the error is returned unchanged.
func (s *Store) Send(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (domain.Message, error) {
	if strings.TrimSpace(ticketID) == "" {
		return domain.Message{}, apperrors.NewValidationError("ticket id required", nil)
	}
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return domain.Message{}, apperrors.NewValidationError("text or attachments required", nil)
	}

	s.mu.Lock()
	epoch := s.epoch
	e := s.entryLocked(ticketID)
	localID := LocalIDPrefix + uuid.NewString()
	pending := domain.Message{
		ID:        localID,
		TicketID:  ticketID,
		Sender:    domain.Sender{Type: domain.SenderCustomer},
		Text:      strings.TrimSpace(text),
		CreatedAt: s.now(),
		Pending:   true,
	}
	if last, ok := e.ticket.LastMessage(); ok && last.CreatedAt.After(pending.CreatedAt) {
		pending.CreatedAt = last.CreatedAt
	}
	for _, att := range attachments {
		pending.Attachments = append(pending.Attachments, domain.AttachmentReference{
			Name:      att.Name,
			MimeType:  att.MimeType,
			SizeBytes: int64(len(att.Data)),
		})
	}
	e.ticket.Messages = append(e.ticket.Messages, pending)
	e.customerSpoke(e.ticket.Assignee == domain.AssigneeHumanAgent)

	prev := e.sendTail
	done := make(chan struct{})
	e.sendTail = done
	s.publishLocked(e)
	s.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep the chain intact for later sends.
			go func() {
				<-prev
				close(done)
			}()
			err := apperrors.NewNetworkError(ctx.Err())
			s.rollback(epoch, ticketID, localID)
			return domain.Message{}, err
		}
	}
	defer close(done)

	msg, err := s.api.SendMessage(ctx, ticketID, text, attachments)
	if err != nil {
		s.logger.Debug("send failed", zap.String("ticket_id", ticketID), zap.Error(err))
		s.rollback(epoch, ticketID, localID)
		return domain.Message{}, err
	}

	confirmed := msg.Clone()
	if confirmed.TicketID == "" {
		confirmed.TicketID = ticketID
	}
	confirmed.Pending = false
	if confirmed.Sender.Type == "" {
		confirmed.Sender.Type = domain.SenderCustomer
	}
	s.confirm(epoch, localID, confirmed)
	return confirmed, nil
}

func (s *Store) confirm(epoch uint64, localID string, confirmed domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	e, ok := s.entries[confirmed.TicketID]
	if !ok {
		return
	}
	i, ok := e.indexOf(localID)
	if !ok {
		return
	}
	if _, dup := e.indexOf(confirmed.ID); dup {
		// A poll already merged the confirmed copy.
		e.ticket.Messages = append(e.ticket.Messages[:i], e.ticket.Messages[i+1:]...)
	} else {
		e.ticket.Messages[i] = confirmed
		// Later sends queued behind this one must stay after it.
		for j := range e.ticket.Messages {
			if m := &e.ticket.Messages[j]; m.Pending && m.CreatedAt.Before(confirmed.CreatedAt) {
				m.CreatedAt = confirmed.CreatedAt
			}
		}
		e.sortMessages()
	}
	if confirmed.CreatedAt.After(e.ticket.UpdatedAt) {
		e.ticket.UpdatedAt = confirmed.CreatedAt
	}
	s.publishLocked(e)
}

func (s *Store) rollback(epoch uint64, ticketID, localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	e, ok := s.entries[ticketID]
	if !ok {
		return
	}
	if i, ok := e.indexOf(localID); ok {
		e.ticket.Messages = append(e.ticket.Messages[:i], e.ticket.Messages[i+1:]...)
	}
	e.awaitingHuman = false
	e.typingHidden = true
	e.stopTyping()
	s.publishLocked(e)
}

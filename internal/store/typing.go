package store

import (
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/domain"
)

// typingVisible is true while a human reply is expected after a send, or
// while an ai agent owes a reply to the customer's latest message. A timeout
// or a rolled back send hides it until the customer writes again.
func (e *entry) typingVisible() bool {
	if e.typingHidden || e.ticket.State == domain.TicketStateClosed {
		return false
	}
	return e.awaitingHuman || e.aiOwesReply()
}

func (e *entry) aiOwesReply() bool {
	if e.ticket.Assignee != domain.AssigneeAIAgent {
		return false
	}
	last, ok := e.ticket.LastMessage()
	return ok && last.Sender.Type == domain.SenderCustomer
}

// customerSpoke re-arms the indicator after a new customer message.
func (e *entry) customerSpoke(expectHuman bool) {
	e.typingHidden = false
	if expectHuman {
		e.awaitingHuman = true
	}
	e.stopTyping()
}

// agentReplied clears the indicator on an inbound agent message.
func (e *entry) agentReplied() {
	e.awaitingHuman = false
	e.stopTyping()
}

func (e *entry) stopTyping() {
	if e.typingTimer != nil {
		e.typingTimer.Stop()
		e.typingTimer = nil
	}
	e.typingGen++
}

// scheduleTypingLocked keeps a timeout armed exactly while the indicator shows.
func (s *Store) scheduleTypingLocked(e *entry) {
	if !e.typingVisible() {
		if e.typingTimer != nil {
			e.stopTyping()
		}
		return
	}
	if e.typingTimer != nil {
		return
	}
	gen := e.typingGen
	epoch := s.epoch
	ticketID := e.ticket.ID
	e.typingTimer = time.AfterFunc(s.typingTimeout, func() {
		s.typingExpired(ticketID, epoch, gen)
	})
}

func (s *Store) typingExpired(ticketID string, epoch, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	e, ok := s.entries[ticketID]
	if !ok || e.typingGen != gen {
		return
	}
	e.typingTimer = nil
	e.typingHidden = true
	e.awaitingHuman = false
	s.logger.Debug("typing indicator timed out", zap.String("ticket_id", ticketID))
	s.publishLocked(e)
}

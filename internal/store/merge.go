package store

import (
	"sort"

	"github.com/spec-kit/support-client/internal/domain"
)

// Merge folds a server ticket into the cache. Messages are deduplicated by
// ID, so applying the same data twice is a no-op. It returns the agent
// messages that were new to the cache.
func (s *Store) Merge(ticket domain.Ticket) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(ticket)
}

// MergeMessage folds a single server message into its ticket. It reports
// whether the message was new.
func (s *Store) MergeMessage(msg domain.Message) bool {
	if msg.ID == "" || msg.TicketID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(msg.TicketID)
	added := e.mergeMessages([]domain.Message{msg})
	if len(added) == 0 {
		return false
	}
	s.noteArrivals(e, added)
	s.publishLocked(e)
	return true
}

func (s *Store) mergeLocked(ticket domain.Ticket) []domain.Message {
	if ticket.ID == "" {
		return nil
	}
	e := s.entryLocked(ticket.ID)
	e.loaded = true
	e.ticket.State = ticket.State
	e.ticket.Assignee = ticket.Assignee
	if e.ticket.Assignee == "" {
		e.ticket.Assignee = domain.AssigneeNone
	}
	e.ticket.Schedules = append([]domain.Schedule{}, ticket.Schedules...)
	if e.ticket.CreatedAt.IsZero() || (!ticket.CreatedAt.IsZero() && ticket.CreatedAt.Before(e.ticket.CreatedAt)) {
		e.ticket.CreatedAt = ticket.CreatedAt
	}
	if ticket.UpdatedAt.After(e.ticket.UpdatedAt) {
		e.ticket.UpdatedAt = ticket.UpdatedAt
	}

	for i := range ticket.Messages {
		if ticket.Messages[i].TicketID == "" {
			ticket.Messages[i].TicketID = ticket.ID
		}
	}
	added := e.mergeMessages(ticket.Messages)
	s.noteArrivals(e, added)
	s.publishLocked(e)

	var inbound []domain.Message
	for _, m := range added {
		if m.Sender.IsAgent() {
			inbound = append(inbound, m.Clone())
		}
	}
	return inbound
}

// noteArrivals updates typing state for newly merged messages.
func (s *Store) noteArrivals(e *entry, added []domain.Message) {
	for _, m := range added {
		switch {
		case m.Sender.IsAgent():
			e.agentReplied()
		case m.Sender.Type == domain.SenderCustomer:
			// Sent from another device or confirmed by a poll.
			e.customerSpoke(false)
		}
	}
}

// mergeMessages appends unseen messages and keeps the thread ordered by
// CreatedAt. Known messages only ever gain the read flag.
func (e *entry) mergeMessages(incoming []domain.Message) []domain.Message {
	var added []domain.Message
	for _, m := range incoming {
		if m.ID == "" {
			continue
		}
		if i, ok := e.indexOf(m.ID); ok {
			if m.Read && !e.ticket.Messages[i].Read {
				e.ticket.Messages[i].Read = true
			}
			continue
		}
		m = m.Clone()
		m.Pending = false
		e.ticket.Messages = append(e.ticket.Messages, m)
		added = append(added, m)
	}
	if len(added) > 0 {
		e.sortMessages()
		if last, ok := e.ticket.LastMessage(); ok && last.CreatedAt.After(e.ticket.UpdatedAt) {
			e.ticket.UpdatedAt = last.CreatedAt
		}
	}
	return added
}

func (e *entry) sortMessages() {
	sort.SliceStable(e.ticket.Messages, func(i, j int) bool {
		return e.ticket.Messages[i].CreatedAt.Before(e.ticket.Messages[j].CreatedAt)
	})
}

// MarkRead flags every unread agent message of a ticket as read and returns
// how many changed.
func (s *Store) MarkRead(ticketID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ticketID]
	if !ok {
		if p, ok := s.previews[ticketID]; ok && p.UnreadCount > 0 {
			n := p.UnreadCount
			p.UnreadCount = 0
			if p.LastMessage != nil {
				p.LastMessage.Read = true
			}
			s.previews[ticketID] = p
			s.publishListLocked()
			return n
		}
		return 0
	}
	changed := 0
	for i := range e.ticket.Messages {
		m := &e.ticket.Messages[i]
		if m.Sender.IsAgent() && !m.Read {
			m.Read = true
			changed++
		}
	}
	if !e.loaded {
		if p, ok := s.previews[ticketID]; ok && p.UnreadCount > changed {
			changed = p.UnreadCount
			p.UnreadCount = 0
			s.previews[ticketID] = p
			s.publishListLocked()
		}
	}
	if changed > 0 {
		s.publishLocked(e)
	}
	return changed
}

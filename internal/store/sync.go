package store

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/domain"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// RefreshList fetches ticket previews. When refreshes overlap, only the most
// recently started one is applied. It returns agent messages that showed up
// as a ticket's latest message since the previous refresh.
func (s *Store) RefreshList(ctx context.Context) ([]domain.Message, error) {
	s.mu.Lock()
	s.listGen++
	gen := s.listGen
	s.mu.Unlock()

	previews, err := s.api.GetTickets(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.listGen {
		s.logger.Debug("discarding superseded ticket list")
		return nil, nil
	}
	first := !s.listLoaded
	s.listLoaded = true
	var arrivals []domain.Message
	seen := make(map[string]struct{}, len(previews))
	for _, p := range previews {
		seen[p.ID] = struct{}{}
		old, known := s.previews[p.ID]
		if !first && p.LastMessage != nil && p.LastMessage.Sender.IsAgent() && !p.LastMessage.Read {
			if !known || old.LastMessage == nil || old.LastMessage.ID != p.LastMessage.ID {
				if e, cached := s.entries[p.ID]; !cached || !e.hasMessage(p.LastMessage.ID) {
					msg := p.LastMessage.Clone()
					if msg.TicketID == "" {
						msg.TicketID = p.ID
					}
					arrivals = append(arrivals, msg)
				}
			}
		}
		s.previews[p.ID] = clonePreview(p)
		if e, ok := s.entries[p.ID]; ok && e.loaded {
			if e.ticket.State != p.State || e.ticket.Assignee != p.Assignee {
				e.ticket.State = p.State
				e.ticket.Assignee = p.Assignee
				s.scheduleTypingLocked(e)
				e.subject.Publish(e.snapshot())
			}
			s.previews[p.ID] = s.mergePreview(e)
		}
	}
	for id, e := range s.entries {
		if _, ok := seen[id]; !ok && e.loaded {
			// Created locally after the server built this list.
			s.previews[id] = s.mergePreview(e)
		}
	}
	for id := range s.previews {
		if _, ok := seen[id]; ok {
			continue
		}
		if e, ok := s.entries[id]; !ok || !e.loaded {
			delete(s.previews, id)
		}
	}
	s.publishListLocked()
	return arrivals, nil
}

// SyncTicket fetches one ticket and merges it. Errors propagate; a result
// superseded by a newer fetch of the same ticket is discarded. It returns
// agent messages new to the cache.
func (s *Store) SyncTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	s.mu.Lock()
	epoch := s.epoch
	e := s.entryLocked(ticketID)
	e.fetchGen++
	gen := e.fetchGen
	s.mu.Unlock()

	ticket, err := s.api.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil, nil
	}
	if cur, ok := s.entries[ticketID]; !ok || cur.fetchGen != gen {
		return nil, nil
	}
	return s.mergeLocked(*ticket), nil
}

// BackgroundSync refreshes the list and every ticket that is watched or
// changed server-side. Transient failures are logged and leave the cache
// stale; other failures are returned after the pass completes.
func (s *Store) BackgroundSync(ctx context.Context) ([]domain.Message, error) {
	var firstErr error
	note := func(err error, fields ...zap.Field) {
		if err == nil {
			return
		}
		fields = append(fields, zap.Error(err))
		if apperrors.IsTransient(err) {
			s.logger.Warn("background sync failed", fields...)
			return
		}
		s.logger.Error("background sync failed", fields...)
		if firstErr == nil {
			firstErr = err
		}
	}

	arrivals, err := s.RefreshList(ctx)
	note(err)
	if err != nil && !apperrors.IsTransient(err) {
		return nil, firstErr
	}

	inbound := make(map[string]domain.Message)
	for _, m := range arrivals {
		inbound[m.ID] = m
	}
	for _, id := range s.staleTickets() {
		added, err := s.SyncTicket(ctx, id)
		note(err, zap.String("ticket_id", id))
		for _, m := range added {
			inbound[m.ID] = m
		}
	}

	out := make([]domain.Message, 0, len(inbound))
	for _, m := range inbound {
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, firstErr
}

// staleTickets lists watched tickets plus loaded tickets whose server preview
// is ahead of the cache.
func (s *Store) staleTickets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, e := range s.entries {
		if e.subject.SubscriberCount() > 0 {
			ids = append(ids, id)
			continue
		}
		if !e.loaded {
			continue
		}
		p, ok := s.previews[id]
		if !ok {
			continue
		}
		if p.LastMessage != nil && !e.hasMessage(p.LastMessage.ID) {
			ids = append(ids, id)
			continue
		}
		if p.UpdatedAt.After(e.ticket.UpdatedAt) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *entry) hasMessage(id string) bool {
	_, ok := e.indexOf(id)
	return ok
}

// Package store is the client-side cache of tickets and their messages.
//
// Store is the only writer of ticket state. Everything else reads snapshots
// through its observable streams or issues commands to it. Every snapshot
// handed out is a deep copy.
package store

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/api/client"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/stream"
)

// DefaultTypingTimeout hides a typing indicator nobody answered.
const DefaultTypingTimeout = 60 * time.Second

// TicketSnapshot is the per-ticket stream value.
type TicketSnapshot struct {
	Ticket                 domain.Ticket
	TypingIndicatorVisible bool
}

// Dependencies bundles collaborators of the store.
type Dependencies struct {
	API           client.APIClient
	Logger        *zap.Logger
	TypingTimeout time.Duration
	Clock         func() time.Time
}

// Store caches tickets keyed by ID.
type Store struct {
	api           client.APIClient
	logger        *zap.Logger
	typingTimeout time.Duration
	now           func() time.Time

	mu       sync.Mutex
	entries  map[string]*entry
	previews map[string]domain.TicketPreview
	list     *stream.Subject[[]domain.TicketPreview]
	listGen  uint64
	// listLoaded suppresses arrivals on the first list fetch of a session.
	listLoaded bool
	// epoch changes on purge so late network results for a previous session are dropped.
	epoch  uint64
	closed bool
}

type entry struct {
	ticket  domain.Ticket
	loaded  bool
	subject *stream.Subject[TicketSnapshot]

	fetchGen uint64
	sendTail chan struct{}

	awaitingHuman bool
	typingHidden  bool
	typingTimer   *time.Timer
	typingGen     uint64
}

// New creates an empty store.
func New(deps Dependencies) *Store {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.TypingTimeout <= 0 {
		deps.TypingTimeout = DefaultTypingTimeout
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Store{
		api:           deps.API,
		logger:        deps.Logger,
		typingTimeout: deps.TypingTimeout,
		now:           deps.Clock,
		entries:       make(map[string]*entry),
		previews:      make(map[string]domain.TicketPreview),
		list:          stream.NewSubject([]domain.TicketPreview{}),
	}
}

// Tickets returns the current ticket list.
func (s *Store) Tickets() []domain.TicketPreview {
	return clonePreviews(s.list.Value())
}

// WatchTickets streams the ticket list, most recent activity first.
func (s *Store) WatchTickets() *stream.Subscription[[]domain.TicketPreview] {
	return s.list.Subscribe()
}

// Ticket returns the cached ticket, if the store has loaded it.
func (s *Store) Ticket(ticketID string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ticketID]
	if !ok || !e.loaded {
		return domain.Ticket{}, false
	}
	return e.ticket.Clone(), true
}

// Snapshot returns the current per-ticket stream value.
func (s *Store) Snapshot(ticketID string) (TicketSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ticketID]
	if !ok {
		return TicketSnapshot{}, false
	}
	return e.snapshot(), true
}

// Watch streams one ticket. The subscriber first receives the current
// snapshot, which is empty until the ticket has been loaded.
func (s *Store) Watch(ticketID string) *stream.Subscription[TicketSnapshot] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(ticketID).subject.Subscribe()
}

// Watched returns IDs of tickets that currently have subscribers.
func (s *Store) Watched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, e := range s.entries {
		if e.subject.SubscriberCount() > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Purge drops every cached ticket and ends all per-ticket streams. The list
// stream stays open and publishes an empty list.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.list.Publish([]domain.TicketPreview{})
}

// Close purges the store and ends the list stream.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.purgeLocked()
	s.list.Publish([]domain.TicketPreview{})
	s.list.Close()
}

func (s *Store) purgeLocked() {
	s.epoch++
	s.listGen++
	s.listLoaded = false
	for _, e := range s.entries {
		e.stopTyping()
		e.subject.Close()
	}
	s.entries = make(map[string]*entry)
	s.previews = make(map[string]domain.TicketPreview)
}

func (s *Store) entryLocked(ticketID string) *entry {
	if e, ok := s.entries[ticketID]; ok {
		return e
	}
	e := &entry{ticket: domain.Ticket{ID: ticketID}}
	e.subject = stream.NewSubject(e.snapshot())
	s.entries[ticketID] = e
	return e
}

// publishLocked pushes the ticket snapshot and the derived list.
func (s *Store) publishLocked(e *entry) {
	s.scheduleTypingLocked(e)
	e.subject.Publish(e.snapshot())
	if e.loaded {
		s.previews[e.ticket.ID] = s.mergePreview(e)
	}
	s.publishListLocked()
}

func (s *Store) mergePreview(e *entry) domain.TicketPreview {
	p := e.ticket.Preview()
	if server, ok := s.previews[e.ticket.ID]; ok && server.UpdatedAt.After(p.UpdatedAt) && server.LastMessage != nil {
		if _, known := e.indexOf(server.LastMessage.ID); !known {
			// The server has activity this cache has not fetched yet.
			return server
		}
	}
	return p
}

func (s *Store) publishListLocked() {
	out := make([]domain.TicketPreview, 0, len(s.previews))
	for _, p := range s.previews {
		out = append(out, clonePreview(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	s.list.Publish(out)
}

func (e *entry) snapshot() TicketSnapshot {
	return TicketSnapshot{
		Ticket:                 e.ticket.Clone(),
		TypingIndicatorVisible: e.typingVisible(),
	}
}

func (e *entry) indexOf(messageID string) (int, bool) {
	if messageID == "" {
		return -1, false
	}
	for i := range e.ticket.Messages {
		if e.ticket.Messages[i].ID == messageID {
			return i, true
		}
	}
	return -1, false
}

func clonePreview(p domain.TicketPreview) domain.TicketPreview {
	if p.LastMessage != nil {
		last := p.LastMessage.Clone()
		p.LastMessage = &last
	}
	return p
}

func clonePreviews(in []domain.TicketPreview) []domain.TicketPreview {
	out := make([]domain.TicketPreview, len(in))
	for i := range in {
		out[i] = clonePreview(in[i])
	}
	return out
}

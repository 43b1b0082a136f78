package domain

import "time"

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen   TicketState = "open"
	TicketStateClosed TicketState = "closed"
)

// AssigneeType is the current responder type for a ticket.
type AssigneeType string

const (
	AssigneeNone       AssigneeType = "unassigned"
	AssigneeHumanAgent AssigneeType = "human_agent"
	AssigneeAIAgent    AssigneeType = "ai_agent"
)

// Schedule is a server-driven timed action attached to a ticket.
type Schedule struct {
	ID     string
	Action string
	FireAt time.Time
}

// Ticket is a single support conversation. Messages are ordered by CreatedAt.
type Ticket struct {
	ID        string
	State     TicketState
	Assignee  AssigneeType
	Messages  []Message
	Schedules []Schedule
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TicketPreview is a row of the ticket list.
type TicketPreview struct {
	ID          string
	State       TicketState
	Assignee    AssigneeType
	LastMessage *Message
	UnreadCount int
	UpdatedAt   time.Time
}

// Clone returns a deep copy so callers never share slices with the cache.
func (t Ticket) Clone() Ticket {
	out := t
	if t.Messages != nil {
		out.Messages = make([]Message, len(t.Messages))
		for i := range t.Messages {
			out.Messages[i] = t.Messages[i].Clone()
		}
	}
	if t.Schedules != nil {
		out.Schedules = append([]Schedule(nil), t.Schedules...)
	}
	return out
}

// LastMessage returns the newest message, if any.
func (t Ticket) LastMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// Preview derives the list row for this ticket.
func (t Ticket) Preview() TicketPreview {
	p := TicketPreview{
		ID:        t.ID,
		State:     t.State,
		Assignee:  t.Assignee,
		UpdatedAt: t.UpdatedAt,
	}
	if last, ok := t.LastMessage(); ok {
		msg := last.Clone()
		p.LastMessage = &msg
		if last.CreatedAt.After(p.UpdatedAt) {
			p.UpdatedAt = last.CreatedAt
		}
	}
	for _, m := range t.Messages {
		if m.Sender.IsAgent() && !m.Read {
			p.UnreadCount++
		}
	}
	return p
}

package domain

import "time"

// OutboxEntry is a message composed while disconnected, waiting for replay.
type OutboxEntry struct {
	ID            string       `json:"id"`
	TicketID      string       `json:"ticket_id"`
	Text          string       `json:"text"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt time.Time    `json:"next_attempt_at"`
	LastError     string       `json:"last_error,omitempty"`
}

// Due reports whether the entry may be attempted at now.
func (e OutboxEntry) Due(now time.Time) bool {
	return !e.NextAttemptAt.After(now)
}

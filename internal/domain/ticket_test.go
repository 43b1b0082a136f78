package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketCloneIsDeep(t *testing.T) {
	avatar := "https://cdn.example.com/a.png"
	orig := Ticket{
		ID: "t-1",
		Messages: []Message{{
			ID:          "m-1",
			Sender:      Sender{Type: SenderHumanAgent, Name: "Ada", AvatarURL: &avatar},
			Attachments: []AttachmentReference{{ID: "a-1"}},
		}},
		Schedules: []Schedule{{ID: "s-1", Action: "auto_close"}},
	}

	cp := orig.Clone()
	cp.Messages[0].Text = "changed"
	cp.Messages[0].Attachments[0].ID = "a-2"
	*cp.Messages[0].Sender.AvatarURL = "other"
	cp.Schedules[0].Action = "x"

	assert.Empty(t, orig.Messages[0].Text)
	assert.Equal(t, "a-1", orig.Messages[0].Attachments[0].ID)
	assert.Equal(t, "https://cdn.example.com/a.png", avatar)
	assert.Equal(t, "auto_close", orig.Schedules[0].Action)
}

func TestTicketPreview(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tk := Ticket{
		ID:        "t-1",
		State:     TicketStateOpen,
		Assignee:  AssigneeAIAgent,
		UpdatedAt: now.Add(-time.Hour),
		Messages: []Message{
			{ID: "m-1", Sender: Sender{Type: SenderCustomer}, CreatedAt: now.Add(-time.Minute)},
			{ID: "m-2", Sender: Sender{Type: SenderAIAgent}, CreatedAt: now},
			{ID: "m-3", Sender: Sender{Type: SenderHumanAgent}, Read: true, CreatedAt: now},
		},
	}

	p := tk.Preview()
	require.NotNil(t, p.LastMessage)
	assert.Equal(t, "m-3", p.LastMessage.ID)
	assert.Equal(t, 1, p.UnreadCount)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestOutboxEntryDue(t *testing.T) {
	now := time.Now()
	assert.True(t, OutboxEntry{NextAttemptAt: now}.Due(now))
	assert.True(t, OutboxEntry{}.Due(now))
	assert.False(t, OutboxEntry{NextAttemptAt: now.Add(time.Second)}.Due(now))
}

package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-client/internal/domain"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func frozenBackend() *Backend {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return NewBackend(Dependencies{Clock: func() time.Time { return at }})
}

func TestCreateTicketShape(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	c := b.OpenSession(ctx, "ios")
	assert.True(t, c.Anonymous)

	ticket, err := b.CreateTicket(ctx, c.ID, "  Need help ", "ios", domain.DeviceInfo{Platform: "ios"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateOpen, ticket.State)
	assert.Equal(t, domain.AssigneeHumanAgent, ticket.Assignee)
	require.Len(t, ticket.Messages, 1)
	assert.Equal(t, "Need help", ticket.Messages[0].Text)
	assert.NotNil(t, ticket.Schedules)
	assert.Empty(t, ticket.Schedules)

	_, err = b.CreateTicket(ctx, c.ID, "   ", "ios", domain.DeviceInfo{}, nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	c := b.OpenSession(ctx, "")
	ticket, err := b.CreateTicket(ctx, c.ID, "one", "web", domain.DeviceInfo{}, nil)
	require.NoError(t, err)
	m2, err := b.AddCustomerMessage(ctx, c.ID, ticket.ID, "two", nil)
	require.NoError(t, err)
	m3, err := b.AgentReply(ctx, ticket.ID, domain.Sender{Type: domain.SenderAIAgent, Name: "Bot"}, "three", "")
	require.NoError(t, err)

	assert.True(t, m2.CreatedAt.After(ticket.Messages[0].CreatedAt))
	assert.True(t, m3.CreatedAt.After(m2.CreatedAt))
}

func TestUnreadAndMarkRead(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	c := b.OpenSession(ctx, "")
	ticket, _ := b.CreateTicket(ctx, c.ID, "hi", "web", domain.DeviceInfo{}, nil)

	_, err := b.AgentReply(ctx, ticket.ID, domain.Sender{Type: domain.SenderHumanAgent, Name: "Ann"}, "hello", domain.AssigneeAIAgent)
	require.NoError(t, err)
	previews := b.Tickets(ctx, c.ID)
	require.Len(t, previews, 1)
	assert.Equal(t, 1, previews[0].UnreadCount)
	assert.Equal(t, domain.AssigneeAIAgent, previews[0].Assignee)

	require.NoError(t, b.MarkRead(ctx, c.ID, ticket.ID))
	assert.Equal(t, 0, b.Tickets(ctx, c.ID)[0].UnreadCount)
}

func TestAgentReplyRejectsCustomerSender(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	c := b.OpenSession(ctx, "")
	ticket, _ := b.CreateTicket(ctx, c.ID, "hi", "web", domain.DeviceInfo{}, nil)
	_, err := b.AgentReply(ctx, ticket.ID, domain.Sender{Type: domain.SenderCustomer}, "x", "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestClosedTicketRejectsMessages(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	c := b.OpenSession(ctx, "")
	ticket, _ := b.CreateTicket(ctx, c.ID, "hi", "web", domain.DeviceInfo{}, nil)
	closed, err := b.SetTicketState(ctx, ticket.ID, domain.TicketStateClosed)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateClosed, closed.State)

	_, err = b.AddCustomerMessage(ctx, c.ID, ticket.ID, "still there?", nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestTicketOwnership(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	owner := b.OpenSession(ctx, "")
	other := b.OpenSession(ctx, "")
	ticket, _ := b.CreateTicket(ctx, owner.ID, "hi", "web", domain.DeviceInfo{}, nil)

	_, err := b.Ticket(ctx, other.ID, ticket.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, b.Tickets(ctx, other.ID))
}

func TestAttachmentsSniffMimeType(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	c := b.OpenSession(ctx, "")
	ticket, err := b.CreateTicket(ctx, c.ID, "see file", "web", domain.DeviceInfo{}, []domain.Attachment{
		{Name: "shot.png", Data: pngHeader},
	})
	require.NoError(t, err)
	refs := ticket.Messages[0].Attachments
	require.Len(t, refs, 1)
	assert.Equal(t, "image/png", refs[0].MimeType)
	assert.Equal(t, int64(len(pngHeader)), refs[0].SizeBytes)
	assert.Equal(t, AttachmentPathPrefix+refs[0].ID, refs[0].URL)

	att, err := b.Attachment(ctx, refs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, att.Data)
}

func TestBrandingSince(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	current := b.Branding(ctx, nil)
	require.NotNil(t, current)
	assert.Nil(t, b.Branding(ctx, &current.UpdatedAt))

	updated := b.SetBranding(domain.Branding{Title: "Help desk"})
	assert.True(t, updated.UpdatedAt.After(current.UpdatedAt))
	got := b.Branding(ctx, &current.UpdatedAt)
	require.NotNil(t, got)
	assert.Equal(t, "Help desk", got.Title)
}

func TestCustomerIdentification(t *testing.T) {
	b := frozenBackend()
	ctx := context.Background()
	c := b.OpenSession(ctx, "")
	email := "a@example.com"
	require.NoError(t, b.UpdateCustomer(ctx, c.ID, &email, nil))
	require.NoError(t, b.UpdateDevice(ctx, c.ID, "abcd", nil))

	got, device, err := b.Customer(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.Anonymous)
	assert.Equal(t, email, *got.Email)
	require.NotNil(t, device)
	assert.Equal(t, "abcd", device.Token)

	assert.True(t, apperrors.IsValidation(b.UpdateDevice(ctx, c.ID, " ", nil)))
	assert.True(t, apperrors.IsNotFound(b.UpdateCustomer(ctx, "missing", &email, nil)))
}

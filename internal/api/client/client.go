// Package client is the transport boundary to the support backend. It
// performs authenticated requests and maps failures onto the error
// taxonomy in pkg/util; it holds no business state and never retries.
package client

import (
	"context"
	"time"

	"github.com/spec-kit/support-client/internal/domain"
)

// APIClient is the backend capability used by the rest of the SDK.
type APIClient interface {
	// GetBranding returns nil, nil when the branding has not changed since since.
	GetBranding(ctx context.Context, since *time.Time) (*domain.Branding, error)
	CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	// GetTickets returns previews ordered by most recent activity first.
	GetTickets(ctx context.Context) ([]domain.TicketPreview, error)
	SendMessage(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (*domain.Message, error)
	UpdateCustomer(ctx context.Context, update CustomerUpdate) error
	UpdateDevice(ctx context.Context, update DeviceUpdate) error
	MarkTicketRead(ctx context.Context, ticketID string) error
}

// SessionOpener establishes an anonymous backend session.
type SessionOpener interface {
	OpenSession(ctx context.Context) (domain.SessionToken, error)
}

// TokenProvider supplies the bearer token for customer-scoped requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenProviderFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// CreateTicketInput starts a new conversation.
type CreateTicketInput struct {
	Message     string
	Channel     string
	Device      domain.DeviceInfo
	Attachments []domain.Attachment
}

// CustomerUpdate is a partial customer update; nil fields are left unchanged.
type CustomerUpdate struct {
	Email      *string
	OriginalID *string
}

// DeviceUpdate binds a push token to the session.
type DeviceUpdate struct {
	Token      string
	OriginalID *string
}

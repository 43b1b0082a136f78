package client

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/support-client/internal/domain"
)

// Mock is a func-field APIClient and SessionOpener. Unset funcs return zero values.
type Mock struct {
	OpenSessionFunc    func(ctx context.Context) (domain.SessionToken, error)
	GetBrandingFunc    func(ctx context.Context, since *time.Time) (*domain.Branding, error)
	CreateTicketFunc   func(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error)
	GetTicketFunc      func(ctx context.Context, ticketID string) (*domain.Ticket, error)
	GetTicketsFunc     func(ctx context.Context) ([]domain.TicketPreview, error)
	SendMessageFunc    func(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (*domain.Message, error)
	UpdateCustomerFunc func(ctx context.Context, update CustomerUpdate) error
	UpdateDeviceFunc   func(ctx context.Context, update DeviceUpdate) error
	MarkTicketReadFunc func(ctx context.Context, ticketID string) error

	mu    sync.Mutex
	calls map[string]int
}

var (
	_ APIClient     = (*Mock)(nil)
	_ SessionOpener = (*Mock)(nil)
	_ APIClient     = (*HTTPClient)(nil)
	_ SessionOpener = (*HTTPClient)(nil)
)

// Calls returns how many times the named method ran.
func (m *Mock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	m.mu.Unlock()
}

// OpenSession defaults to a fixed "mock-customer" session.
func (m *Mock) OpenSession(ctx context.Context) (domain.SessionToken, error) {
	m.record("OpenSession")
	if m.OpenSessionFunc != nil {
		return m.OpenSessionFunc(ctx)
	}
	return domain.SessionToken{CustomerID: "mock-customer", Token: "mock-token"}, nil
}

// GetBranding defaults to "not modified".
func (m *Mock) GetBranding(ctx context.Context, since *time.Time) (*domain.Branding, error) {
	m.record("GetBranding")
	if m.GetBrandingFunc != nil {
		return m.GetBrandingFunc(ctx, since)
	}
	return nil, nil
}

// CreateTicket delegates to CreateTicketFunc.
func (m *Mock) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	m.record("CreateTicket")
	if m.CreateTicketFunc != nil {
		return m.CreateTicketFunc(ctx, input)
	}
	return &domain.Ticket{}, nil
}

// GetTicket delegates to GetTicketFunc.
func (m *Mock) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	m.record("GetTicket")
	if m.GetTicketFunc != nil {
		return m.GetTicketFunc(ctx, ticketID)
	}
	return &domain.Ticket{ID: ticketID}, nil
}

// GetTickets delegates to GetTicketsFunc.
func (m *Mock) GetTickets(ctx context.Context) ([]domain.TicketPreview, error) {
	m.record("GetTickets")
	if m.GetTicketsFunc != nil {
		return m.GetTicketsFunc(ctx)
	}
	return nil, nil
}

// SendMessage delegates to SendMessageFunc.
func (m *Mock) SendMessage(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (*domain.Message, error) {
	m.record("SendMessage")
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, ticketID, text, attachments)
	}
	return &domain.Message{TicketID: ticketID, Text: text, CreatedAt: time.Now()}, nil
}

// UpdateCustomer delegates to UpdateCustomerFunc.
func (m *Mock) UpdateCustomer(ctx context.Context, update CustomerUpdate) error {
	m.record("UpdateCustomer")
	if m.UpdateCustomerFunc != nil {
		return m.UpdateCustomerFunc(ctx, update)
	}
	return nil
}

// UpdateDevice delegates to UpdateDeviceFunc.
func (m *Mock) UpdateDevice(ctx context.Context, update DeviceUpdate) error {
	m.record("UpdateDevice")
	if m.UpdateDeviceFunc != nil {
		return m.UpdateDeviceFunc(ctx, update)
	}
	return nil
}

// MarkTicketRead delegates to MarkTicketReadFunc.
func (m *Mock) MarkTicketRead(ctx context.Context, ticketID string) error {
	m.record("MarkTicketRead")
	if m.MarkTicketReadFunc != nil {
		return m.MarkTicketReadFunc(ctx, ticketID)
	}
	return nil
}

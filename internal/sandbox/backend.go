// Package sandbox is an in-memory support backend. It serves the same wire
// contract as the hosted service so hosts and tests can run offline.
package sandbox

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/domain"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// AttachmentPathPrefix is where stored attachments are served.
const AttachmentPathPrefix = "/v1/attachments/"

type customerRecord struct {
	customer domain.Customer
	device   *domain.Device
	channel  string
}

type storedAttachment struct {
	ticketID string
	name     string
	mimeType string
	data     []byte
}

// Backend holds customers, tickets and attachments in memory.
type Backend struct {
	logger          *zap.Logger
	now             func() time.Time
	defaultAssignee domain.AssigneeType

	mu          sync.RWMutex
	branding    domain.Branding
	customers   map[string]*customerRecord
	tickets     map[string]*domain.Ticket
	owners      map[string]string
	attachments map[string]storedAttachment
	last        time.Time
}

// Dependencies bundles collaborators of the backend.
type Dependencies struct {
	Logger          *zap.Logger
	Clock           func() time.Time
	DefaultAssignee domain.AssigneeType
	Branding        domain.Branding
}

// NewBackend constructs an empty backend.
func NewBackend(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	switch deps.DefaultAssignee {
	case domain.AssigneeHumanAgent, domain.AssigneeAIAgent, domain.AssigneeNone:
	default:
		deps.DefaultAssignee = domain.AssigneeHumanAgent
	}
	if deps.Branding.Title == "" {
		deps.Branding = domain.Branding{
			Title:          "Support",
			AccentColor:    "#3366ff",
			WelcomeMessage: "How can we help?",
			UpdatedAt:      deps.Clock().UTC().Truncate(time.Second),
		}
	}
	return &Backend{
		logger:          deps.Logger,
		now:             deps.Clock,
		defaultAssignee: deps.DefaultAssignee,
		branding:        deps.Branding,
		customers:       make(map[string]*customerRecord),
		tickets:         make(map[string]*domain.Ticket),
		owners:          make(map[string]string),
		attachments:     make(map[string]storedAttachment),
	}
}

// tick returns a strictly increasing timestamp so thread order is total.
func (b *Backend) tick() time.Time {
	t := b.now().UTC()
	if !t.After(b.last) {
		t = b.last.Add(time.Microsecond)
	}
	b.last = t
	return t
}

// OpenSession creates an anonymous customer.
func (b *Backend) OpenSession(ctx context.Context, channel string) domain.Customer {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := domain.Customer{ID: uuid.NewString(), Anonymous: true}
	b.customers[c.ID] = &customerRecord{customer: c, channel: channel}
	b.logger.Debug("session opened", zap.String("customer_id", c.ID))
	return c
}

// CustomerExists reports whether the customer has a session.
func (b *Backend) CustomerExists(ctx context.Context, customerID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.customers[customerID]
	return ok
}

// Customer returns the stored customer and device.
func (b *Backend) Customer(ctx context.Context, customerID string) (domain.Customer, *domain.Device, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.customers[customerID]
	if !ok {
		return domain.Customer{}, nil, apperrors.NewNotFound("customer", nil)
	}
	var device *domain.Device
	if rec.device != nil {
		d := *rec.device
		device = &d
	}
	return rec.customer, device, nil
}

// Branding returns the current branding, or nil when it has not changed
// since since.
func (b *Backend) Branding(ctx context.Context, since *time.Time) *domain.Branding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if since != nil && !b.branding.UpdatedAt.After(*since) {
		return nil
	}
	out := b.branding
	return &out
}

// SetBranding replaces the branding and stamps it.
func (b *Backend) SetBranding(branding domain.Branding) domain.Branding {
	b.mu.Lock()
	defer b.mu.Unlock()
	branding.UpdatedAt = b.tick().Truncate(time.Second)
	if !branding.UpdatedAt.After(b.branding.UpdatedAt) {
		branding.UpdatedAt = b.branding.UpdatedAt.Add(time.Second)
	}
	b.branding = branding
	return branding
}

// UpdateCustomer applies a partial update.
func (b *Backend) UpdateCustomer(ctx context.Context, customerID string, email, originalID *string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.customers[customerID]
	if !ok {
		return apperrors.NewNotFound("customer", nil)
	}
	if email != nil {
		v := strings.TrimSpace(*email)
		rec.customer.Email = &v
	}
	if originalID != nil {
		v := strings.TrimSpace(*originalID)
		rec.customer.OriginalID = &v
	}
	if rec.customer.Email != nil || rec.customer.OriginalID != nil {
		rec.customer.Anonymous = false
	}
	return nil
}

// UpdateDevice binds a push token to the customer.
func (b *Backend) UpdateDevice(ctx context.Context, customerID, token string, originalID *string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.NewValidationError("device_token required", map[string]any{"device_token": "required"})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.customers[customerID]
	if !ok {
		return apperrors.NewNotFound("customer", nil)
	}
	rec.device = &domain.Device{Token: token, OriginalID: originalID}
	return nil
}

// CreateTicket opens a ticket whose first message is the customer's.
func (b *Backend) CreateTicket(ctx context.Context, customerID, message, channel string, device domain.DeviceInfo, attachments []domain.Attachment) (domain.Ticket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.Ticket{}, apperrors.NewValidationError("message required", map[string]any{"message": "required"})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.customers[customerID]; !ok {
		return domain.Ticket{}, apperrors.NewUnauthorized("customer not found")
	}

	now := b.tick()
	t := &domain.Ticket{
		ID:        uuid.NewString(),
		State:     domain.TicketStateOpen,
		Assignee:  b.defaultAssignee,
		Messages:  []domain.Message{},
		Schedules: []domain.Schedule{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.tickets[t.ID] = t
	b.owners[t.ID] = customerID
	t.Messages = append(t.Messages, domain.Message{
		ID:          uuid.NewString(),
		TicketID:    t.ID,
		Sender:      domain.Sender{Type: domain.SenderCustomer},
		Text:        message,
		Attachments: b.storeAttachmentsLocked(t.ID, attachments),
		Read:        true,
		CreatedAt:   now,
	})
	b.logger.Info("ticket created",
		zap.String("ticket_id", t.ID),
		zap.String("channel", channel),
		zap.String("platform", device.Platform))
	return t.Clone(), nil
}

// Tickets lists the customer's tickets, most recent activity first.
func (b *Backend) Tickets(ctx context.Context, customerID string) []domain.TicketPreview {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.TicketPreview, 0)
	for id, owner := range b.owners {
		if owner != customerID {
			continue
		}
		p := b.tickets[id].Preview()
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Ticket returns one of the customer's tickets.
func (b *Backend) Ticket(ctx context.Context, customerID, ticketID string) (domain.Ticket, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, err := b.ownedLocked(customerID, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	return t.Clone(), nil
}

// AddCustomerMessage appends a customer message.
func (b *Backend) AddCustomerMessage(ctx context.Context, customerID, ticketID, text string, attachments []domain.Attachment) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return domain.Message{}, apperrors.NewValidationError("text or attachments required", nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.ownedLocked(customerID, ticketID)
	if err != nil {
		return domain.Message{}, err
	}
	if t.State == domain.TicketStateClosed {
		return domain.Message{}, apperrors.NewValidationError("ticket is closed", map[string]any{"ticket_id": ticketID})
	}
	msg := domain.Message{
		ID:          uuid.NewString(),
		TicketID:    t.ID,
		Sender:      domain.Sender{Type: domain.SenderCustomer},
		Text:        text,
		Attachments: b.storeAttachmentsLocked(t.ID, attachments),
		Read:        true,
		CreatedAt:   b.tick(),
	}
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = msg.CreatedAt
	return msg.Clone(), nil
}

// MarkRead marks every agent message on the ticket as read.
func (b *Backend) MarkRead(ctx context.Context, customerID, ticketID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.ownedLocked(customerID, ticketID)
	if err != nil {
		return err
	}
	for i := range t.Messages {
		if t.Messages[i].Sender.IsAgent() {
			t.Messages[i].Read = true
		}
	}
	return nil
}

// AgentReply is a simulated reply from a human or ai agent. An empty
// assignee keeps the current one.
func (b *Backend) AgentReply(ctx context.Context, ticketID string, sender domain.Sender, text string, assignee domain.AssigneeType) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, apperrors.NewValidationError("text required", map[string]any{"text": "required"})
	}
	if !sender.IsAgent() {
		return domain.Message{}, apperrors.NewValidationError("sender must be an agent", map[string]any{"sender_type": string(sender.Type)})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tickets[ticketID]
	if !ok {
		return domain.Message{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	msg := domain.Message{
		ID:        uuid.NewString(),
		TicketID:  t.ID,
		Sender:    sender,
		Text:      text,
		CreatedAt: b.tick(),
	}
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = msg.CreatedAt
	if assignee != "" {
		t.Assignee = assignee
	}
	return msg.Clone(), nil
}

// SetTicketState opens or closes a ticket.
func (b *Backend) SetTicketState(ctx context.Context, ticketID string, state domain.TicketState) (domain.Ticket, error) {
	if state != domain.TicketStateOpen && state != domain.TicketStateClosed {
		return domain.Ticket{}, apperrors.NewValidationError("unknown state", map[string]any{"state": string(state)})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if t.State != state {
		t.State = state
		t.UpdatedAt = b.tick()
	}
	return t.Clone(), nil
}

// Attachment returns stored attachment bytes.
func (b *Backend) Attachment(ctx context.Context, attachmentID string) (domain.Attachment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.attachments[attachmentID]
	if !ok {
		return domain.Attachment{}, apperrors.NewNotFound("attachment", map[string]any{"attachment_id": attachmentID})
	}
	return domain.Attachment{Name: a.name, MimeType: a.mimeType, Data: append([]byte(nil), a.data...)}, nil
}

// Stats reports entity counts for readiness checks.
func (b *Backend) Stats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]int{
		"customers":   len(b.customers),
		"tickets":     len(b.tickets),
		"attachments": len(b.attachments),
	}
}

func (b *Backend) ownedLocked(customerID, ticketID string) (*domain.Ticket, error) {
	t, ok := b.tickets[ticketID]
	if !ok || b.owners[ticketID] != customerID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return t, nil
}

func (b *Backend) storeAttachmentsLocked(ticketID string, attachments []domain.Attachment) []domain.AttachmentReference {
	if len(attachments) == 0 {
		return nil
	}
	refs := make([]domain.AttachmentReference, 0, len(attachments))
	for _, att := range attachments {
		id := uuid.NewString()
		mime := att.MimeType
		if mime == "" || mime == "application/octet-stream" {
			mime = mimetype.Detect(att.Data).String()
		}
		b.attachments[id] = storedAttachment{
			ticketID: ticketID,
			name:     att.Name,
			mimeType: mime,
			data:     append([]byte(nil), att.Data...),
		}
		refs = append(refs, domain.AttachmentReference{
			ID:        id,
			Name:      att.Name,
			MimeType:  mime,
			SizeBytes: int64(len(att.Data)),
			URL:       AttachmentPathPrefix + id,
		})
	}
	return refs
}

package dto

import (
	"time"

	"github.com/spec-kit/support-client/internal/domain"
)

// DataEnvelope wraps successful responses.
type DataEnvelope[T any] struct {
	Data T `json:"data"`
}

// ErrorEnvelope wraps error responses.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// DeviceInfoPayload describes the host device.
type DeviceInfoPayload struct {
	Platform   string `json:"platform" validate:"required"`
	OSVersion  string `json:"os_version,omitempty"`
	Model      string `json:"model,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

// CreateTicketRequest payload; sent as JSON or as the multipart "payload" field.
type CreateTicketRequest struct {
	Message string            `json:"message" validate:"required"`
	Channel string            `json:"channel" validate:"required"`
	Device  DeviceInfoPayload `json:"device"`
}

// SendMessageRequest payload for JSON sends.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SenderResponse describes a message author.
type SenderResponse struct {
	Type      domain.SenderType `json:"type"`
	Name      string            `json:"name"`
	AvatarURL *string           `json:"avatar_url,omitempty"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url"`
}

// MessageResponse represents a thread message.
type MessageResponse struct {
	ID          string               `json:"id"`
	TicketID    string               `json:"ticket_id"`
	Sender      SenderResponse       `json:"sender"`
	Text        string               `json:"text"`
	Attachments []AttachmentResponse `json:"attachments"`
	Read        bool                 `json:"read"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ScheduleResponse is a server-driven timed action.
type ScheduleResponse struct {
	ID     string    `json:"id"`
	Action string    `json:"action"`
	FireAt time.Time `json:"fire_at"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID        string              `json:"id"`
	State     domain.TicketState  `json:"state"`
	Assignee  domain.AssigneeType `json:"assignee"`
	Messages  []MessageResponse   `json:"messages"`
	Schedules []ScheduleResponse  `json:"schedules"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TicketPreviewResponse is a ticket list row.
type TicketPreviewResponse struct {
	ID          string              `json:"id"`
	State       domain.TicketState  `json:"state"`
	Assignee    domain.AssigneeType `json:"assignee"`
	LastMessage *MessageResponse    `json:"last_message,omitempty"`
	UnreadCount int                 `json:"unread_count"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// BrandingResponse describes chat branding.
type BrandingResponse struct {
	Title          string    `json:"title"`
	AccentColor    string    `json:"accent_color"`
	LogoURL        string    `json:"logo_url"`
	WelcomeMessage string    `json:"welcome_message"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FromMessage converts a domain message to its wire form.
func FromMessage(m domain.Message) MessageResponse {
	attachments := make([]AttachmentResponse, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		attachments = append(attachments, AttachmentResponse{
			ID:        att.ID,
			FileName:  att.Name,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
			URL:       att.URL,
		})
	}
	return MessageResponse{
		ID:       m.ID,
		TicketID: m.TicketID,
		Sender: SenderResponse{
			Type:      m.Sender.Type,
			Name:      m.Sender.Name,
			AvatarURL: m.Sender.AvatarURL,
		},
		Text:        m.Text,
		Attachments: attachments,
		Read:        m.Read,
		CreatedAt:   m.CreatedAt,
	}
}

// ToDomain converts a wire message to the domain model.
func (r MessageResponse) ToDomain() domain.Message {
	var attachments []domain.AttachmentReference
	for _, att := range r.Attachments {
		attachments = append(attachments, domain.AttachmentReference{
			ID:        att.ID,
			Name:      att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
			URL:       att.URL,
		})
	}
	return domain.Message{
		ID:       r.ID,
		TicketID: r.TicketID,
		Sender: domain.Sender{
			Type:      r.Sender.Type,
			Name:      r.Sender.Name,
			AvatarURL: r.Sender.AvatarURL,
		},
		Text:        r.Text,
		Attachments: attachments,
		Read:        r.Read,
		CreatedAt:   r.CreatedAt,
	}
}

// FromTicket converts a domain ticket to its wire form.
func FromTicket(t domain.Ticket) TicketResponse {
	msgs := make([]MessageResponse, 0, len(t.Messages))
	for _, m := range t.Messages {
		msgs = append(msgs, FromMessage(m))
	}
	schedules := make([]ScheduleResponse, 0, len(t.Schedules))
	for _, s := range t.Schedules {
		schedules = append(schedules, ScheduleResponse{ID: s.ID, Action: s.Action, FireAt: s.FireAt})
	}
	return TicketResponse{
		ID:        t.ID,
		State:     t.State,
		Assignee:  t.Assignee,
		Messages:  msgs,
		Schedules: schedules,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// ToDomain converts a wire ticket to the domain model.
func (r TicketResponse) ToDomain() domain.Ticket {
	t := domain.Ticket{
		ID:        r.ID,
		State:     r.State,
		Assignee:  r.Assignee,
		Messages:  make([]domain.Message, 0, len(r.Messages)),
		Schedules: make([]domain.Schedule, 0, len(r.Schedules)),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if t.Assignee == "" {
		t.Assignee = domain.AssigneeNone
	}
	for _, m := range r.Messages {
		msg := m.ToDomain()
		if msg.TicketID == "" {
			msg.TicketID = r.ID
		}
		t.Messages = append(t.Messages, msg)
	}
	for _, s := range r.Schedules {
		t.Schedules = append(t.Schedules, domain.Schedule{ID: s.ID, Action: s.Action, FireAt: s.FireAt})
	}
	return t
}

// FromPreview converts a list row to its wire form.
func FromPreview(p domain.TicketPreview) TicketPreviewResponse {
	resp := TicketPreviewResponse{
		ID:          p.ID,
		State:       p.State,
		Assignee:    p.Assignee,
		UnreadCount: p.UnreadCount,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.LastMessage != nil {
		last := FromMessage(*p.LastMessage)
		resp.LastMessage = &last
	}
	return resp
}

// ToDomain converts a wire list row to the domain model.
func (r TicketPreviewResponse) ToDomain() domain.TicketPreview {
	p := domain.TicketPreview{
		ID:          r.ID,
		State:       r.State,
		Assignee:    r.Assignee,
		UnreadCount: r.UnreadCount,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LastMessage != nil {
		last := r.LastMessage.ToDomain()
		p.LastMessage = &last
	}
	return p
}

// FromBranding converts branding to its wire form.
func FromBranding(b domain.Branding) BrandingResponse {
	return BrandingResponse{
		Title:          b.Title,
		AccentColor:    b.AccentColor,
		LogoURL:        b.LogoURL,
		WelcomeMessage: b.WelcomeMessage,
		UpdatedAt:      b.UpdatedAt,
	}
}

// ToDomain converts wire branding to the domain model.
func (r BrandingResponse) ToDomain() domain.Branding {
	return domain.Branding{
		Title:          r.Title,
		AccentColor:    r.AccentColor,
		LogoURL:        r.LogoURL,
		WelcomeMessage: r.WelcomeMessage,
		UpdatedAt:      r.UpdatedAt,
	}
}

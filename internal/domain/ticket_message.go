package domain

import "time"

// SenderType indicates who authored a message.
type SenderType string

const (
	SenderCustomer   SenderType = "customer"
	SenderHumanAgent SenderType = "human_agent"
	SenderAIAgent    SenderType = "ai_agent"
)

// Sender identifies the author of a message.
type Sender struct {
	Type      SenderType
	Name      string
	AvatarURL *string
}

// IsAgent reports whether the sender is a human or ai agent.
func (s Sender) IsAgent() bool {
	return s.Type == SenderHumanAgent || s.Type == SenderAIAgent
}

// Message captures one entry in a ticket thread. Only Read changes after creation.
type Message struct {
	ID          string
	TicketID    string
	Sender      Sender
	Text        string
	Attachments []AttachmentReference
	Read        bool
	CreatedAt   time.Time
	// Pending marks a locally synthesized message awaiting server confirmation.
	Pending bool
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]AttachmentReference(nil), m.Attachments...)
	}
	if m.Sender.AvatarURL != nil {
		avatar := *m.Sender.AvatarURL
		out.Sender.AvatarURL = &avatar
	}
	return out
}

// Attachment is a file supplied by the host when sending.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// AttachmentReference points at an attachment persisted server-side.
type AttachmentReference struct {
	ID        string
	Name      string
	MimeType  string
	SizeBytes int64
	URL       string
}

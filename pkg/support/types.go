package support

import (
	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/events"
	"github.com/spec-kit/support-client/internal/observability"
	"github.com/spec-kit/support-client/internal/service"
	"github.com/spec-kit/support-client/internal/store"
	"github.com/spec-kit/support-client/internal/stream"
	"github.com/spec-kit/support-client/internal/worker"
)

// Re-exported so hosts never import internal packages.
type (
	Config          = config.Config
	Ticket          = domain.Ticket
	TicketPreview   = domain.TicketPreview
	TicketSnapshot  = store.TicketSnapshot
	Message         = domain.Message
	Attachment      = domain.Attachment
	DeviceInfo      = domain.DeviceInfo
	Notification    = domain.Notification
	Branding        = domain.Branding
	SessionState    = domain.SessionState
	SessionRecord   = domain.SessionRecord
	OutboxEntry     = domain.OutboxEntry
	AppState        = service.AppState
	Presentation    = service.Presentation
	Event           = events.Event
	EventName       = events.EventName
	FlushResult     = worker.FlushResult
	MetricsSnapshot = observability.MetricsSnapshot
)

// Subscription is a stream handle; Close it when done.
type Subscription[T any] = stream.Subscription[T]

const (
	PresentSoundOnly      = service.PresentSoundOnly
	PresentSoundAndBanner = service.PresentSoundAndBanner

	SessionLoggedOut  = domain.SessionLoggedOut
	SessionAnonymous  = domain.SessionAnonymous
	SessionIdentified = domain.SessionIdentified
)

// LoadConfig reads configuration from the environment and .env.
func LoadConfig() (*Config, error) {
	return config.Load()
}

package domain

// NotificationKind distinguishes deep-link intents from live banners.
type NotificationKind string

const (
	NotificationDeepLink NotificationKind = "deep_link"
	NotificationLive     NotificationKind = "live"
)

// Notification is a transient in-app record; it is never persisted.
type Notification struct {
	Kind            NotificationKind
	TicketID        string
	SenderName      string
	Preview         string
	AvatarURL       *string
	AttachmentCount *int
}

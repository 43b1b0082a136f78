package domain

import "time"

// Customer is the identity record of the person chatting.
type Customer struct {
	ID         string
	Email      *string
	OriginalID *string
	Anonymous  bool
}

// Device is the push delivery target bound to the session.
type Device struct {
	Token      string
	OriginalID *string
}

// DeviceInfo describes the host device when a ticket is created.
type DeviceInfo struct {
	Platform   string
	OSVersion  string
	Model      string
	AppVersion string
	Locale     string
}

// SessionState is the SessionManager state.
type SessionState string

const (
	SessionLoggedOut  SessionState = "logged_out"
	SessionAnonymous  SessionState = "anonymous"
	SessionIdentified SessionState = "identified"
)

// SessionToken is issued by the backend when a session is opened.
type SessionToken struct {
	CustomerID string
	Token      string
	ExpiresAt  time.Time
}

// SessionRecord is the persisted session.
type SessionRecord struct {
	State          SessionState
	Customer       Customer
	Device         *Device
	Token          string
	TokenExpiresAt time.Time
	UpdatedAt      time.Time
}

// Branding is the host-visible look of the chat.
type Branding struct {
	Title          string
	AccentColor    string
	LogoURL        string
	WelcomeMessage string
	UpdatedAt      time.Time
}

package dto

import "time"

// SessionResponse is returned when a session is opened.
type SessionResponse struct {
	CustomerID string    `json:"customer_id"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// UpdateCustomerRequest is a partial update; nil fields are left unchanged.
type UpdateCustomerRequest struct {
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	OriginalID *string `json:"original_id,omitempty" validate:"omitempty,max=255"`
}

// UpdateDeviceRequest binds a push target to the session.
type UpdateDeviceRequest struct {
	DeviceToken string  `json:"device_token" validate:"required"`
	OriginalID  *string `json:"original_id,omitempty" validate:"omitempty,max=255"`
}

// AgentReplyRequest simulates an agent reply on the sandbox backend.
type AgentReplyRequest struct {
	SenderType string  `json:"sender_type" validate:"required,oneof=human_agent ai_agent"`
	SenderName string  `json:"sender_name" validate:"required"`
	AvatarURL  *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
	Text       string  `json:"text" validate:"required"`
	Assignee   string  `json:"assignee,omitempty" validate:"omitempty,oneof=human_agent ai_agent unassigned"`
}

// UpdateTicketStateRequest changes ticket state on the sandbox backend.
type UpdateTicketStateRequest struct {
	State string `json:"state" validate:"required,oneof=open closed"`
}

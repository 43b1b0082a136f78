package events

import (
	"time"
)

// EventName enumerates analytics event identifiers.
type EventName string

const (
	EventAny                EventName = "*"
	EventLogin              EventName = "login"
	EventLogout             EventName = "logout"
	EventCustomerUpdated    EventName = "customer_updated"
	EventDeviceRegistered   EventName = "device_registered"
	EventSessionOpened      EventName = "session_opened"
	EventTicketCreated      EventName = "ticket_created"
	EventTicketOpened       EventName = "ticket_opened"
	EventMessageSent        EventName = "message_sent"
	EventMessageSendFailed  EventName = "message_send_failed"
	EventTicketRead         EventName = "ticket_read"
	EventPushReceived       EventName = "push_received"
	EventNotificationTapped EventName = "notification_tapped"
	EventUnreadRefreshed    EventName = "unread_count_refreshed"
	EventOutboxQueued       EventName = "outbox_message_queued"
	EventOutboxDelivered    EventName = "outbox_message_delivered"
	EventOutboxDropped      EventName = "outbox_message_dropped"
)

// Event is an analytics record handed to host observers.
type Event struct {
	ID                 string         `json:"id"`
	Name               EventName      `json:"name"`
	Properties         map[string]any `json:"properties,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	SDKVersion         string         `json:"sdk_version"`
	CustomerID         string         `json:"customer_id,omitempty"`
	OriginalCustomerID string         `json:"original_customer_id,omitempty"`
}

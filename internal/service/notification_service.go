package service

import (
	"context"
	"encoding/json"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/events"
	"github.com/spec-kit/support-client/internal/stream"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

const (
	defaultNamespace = "support"
	previewLimit     = 140
)

// Presentation is how the OS should present a foreground push.
type Presentation string

const (
	PresentSoundOnly      Presentation = "sound"
	PresentSoundAndBanner Presentation = "sound_banner"
)

// AppState describes what the host UI currently shows.
type AppState struct {
	ChatOpen     bool
	OpenTicketID string
}

// NotificationRouter classifies push payloads and feeds the in-app
// notification stream.
type NotificationRouter struct {
	namespace string
	feed      *stream.Feed[domain.Notification]
	policy    *bluemonday.Policy
	tracker   *events.Tracker
	logger    *zap.Logger
}

// NewNotificationRouter creates the router.
func NewNotificationRouter(cfg config.PushConfig, tracker *events.Tracker, logger *zap.Logger) *NotificationRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	ns := strings.TrimSpace(cfg.Namespace)
	if ns == "" {
		ns = defaultNamespace
	}
	return &NotificationRouter{
		namespace: ns,
		feed:      stream.NewFeed[domain.Notification](),
		policy:    bluemonday.StrictPolicy(),
		tracker:   tracker,
		logger:    logger,
	}
}

// Notifications subscribes to deep-link and live notifications.
func (n *NotificationRouter) Notifications() *stream.Subscription[domain.Notification] {
	return n.feed.Subscribe()
}

// ObserverCount reports active in-app notification observers.
func (n *NotificationRouter) ObserverCount() int {
	return n.feed.SubscriberCount()
}

// IsOwnedPush reports whether payload carries the reserved namespace key.
func (n *NotificationRouter) IsOwnedPush(payload map[string]any) bool {
	_, ok := n.section(payload)
	return ok
}

// PresentationPolicy picks sound-only whenever the host will render the
// notification itself, so it is never shown twice.
func (n *NotificationRouter) PresentationPolicy(payload map[string]any, state AppState) Presentation {
	if !n.IsOwnedPush(payload) {
		return PresentSoundAndBanner
	}
	n.tracker.Track(context.Background(), events.EventPushReceived, map[string]any{"chat_open": state.ChatOpen})
	if state.ChatOpen || n.feed.SubscriberCount() > 0 {
		return PresentSoundOnly
	}
	return PresentSoundAndBanner
}

// HandleTap turns a tapped push into a deep-link intent.
func (n *NotificationRouter) HandleTap(ctx context.Context, payload map[string]any) (domain.Notification, error) {
	note, ok := n.Parse(payload)
	if !ok {
		return domain.Notification{}, apperrors.NewValidationError("not a support notification", nil)
	}
	if note.TicketID == "" {
		return domain.Notification{}, apperrors.NewValidationError("notification has no ticket", map[string]any{"ticket_id": "required"})
	}
	note.Kind = domain.NotificationDeepLink
	delivered := n.feed.Send(note)
	n.logger.Debug("notification tapped", zap.String("ticket_id", note.TicketID), zap.Int("observers", delivered))
	n.tracker.Track(ctx, events.EventNotificationTapped, map[string]any{"ticket_id": note.TicketID})
	return note, nil
}

// DispatchLive emits live notifications for inbound agent messages, skipping
// the ticket the chat UI currently shows. It returns how many were emitted.
func (n *NotificationRouter) DispatchLive(messages []domain.Message, state AppState) int {
	emitted := 0
	for _, msg := range messages {
		if !msg.Sender.IsAgent() {
			continue
		}
		if state.ChatOpen && (state.OpenTicketID == "" || state.OpenTicketID == msg.TicketID) {
			continue
		}
		note := domain.Notification{
			Kind:       domain.NotificationLive,
			TicketID:   msg.TicketID,
			SenderName: msg.Sender.Name,
			Preview:    n.preview(msg.Text),
		}
		if msg.Sender.AvatarURL != nil {
			avatar := *msg.Sender.AvatarURL
			note.AvatarURL = &avatar
		}
		if count := len(msg.Attachments); count > 0 {
			note.AttachmentCount = &count
		}
		n.feed.Send(note)
		emitted++
	}
	return emitted
}

// Parse extracts a notification from an owned payload. The namespace value
// may be a nested map or a JSON string; aps alert fields fill gaps.
func (n *NotificationRouter) Parse(payload map[string]any) (domain.Notification, bool) {
	section, ok := n.section(payload)
	if !ok {
		return domain.Notification{}, false
	}
	note := domain.Notification{
		TicketID:   stringField(section, "ticket_id"),
		SenderName: stringField(section, "sender_name"),
		Preview:    stringField(section, "message"),
	}
	if avatar := stringField(section, "avatar_url"); avatar != "" {
		note.AvatarURL = &avatar
	}
	if count, ok := intField(section, "attachment_count"); ok {
		note.AttachmentCount = &count
	}

	if alert := apsAlert(payload); alert != nil {
		if note.SenderName == "" {
			note.SenderName = stringField(alert, "title")
		}
		if note.Preview == "" {
			note.Preview = stringField(alert, "body")
		}
	}
	note.SenderName = n.preview(note.SenderName)
	note.Preview = n.preview(note.Preview)
	return note, true
}

// Close ends every notification subscription.
func (n *NotificationRouter) Close() {
	n.feed.Close()
}

func (n *NotificationRouter) section(payload map[string]any) (map[string]any, bool) {
	if payload == nil {
		return nil, false
	}
	raw, ok := payload[n.namespace]
	if !ok || raw == nil {
		return nil, false
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			n.logger.Debug("malformed notification payload", zap.Error(err))
			return map[string]any{}, true
		}
		return decoded, true
	default:
		return map[string]any{}, true
	}
}

// preview strips markup, collapses whitespace and truncates.
func (n *NotificationRouter) preview(s string) string {
	s = html.UnescapeString(n.policy.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit-1]) + "…"
	}
	return s
}

func apsAlert(payload map[string]any) map[string]any {
	aps, ok := payload["aps"].(map[string]any)
	if !ok {
		return nil
	}
	switch alert := aps["alert"].(type) {
	case map[string]any:
		return alert
	case string:
		return map[string]any{"body": alert}
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		return i, err == nil
	}
	return 0, false
}

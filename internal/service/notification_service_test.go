package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/stream"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

func ownedPayload() map[string]any {
	return map[string]any{
		"aps": map[string]any{"alert": map[string]any{"title": "Ann", "body": "fallback"}},
		"support": map[string]any{
			"ticket_id":        "t-1",
			"sender_name":      "Ann",
			"message":          "<b>Hello</b>   there &amp; welcome",
			"avatar_url":       "https://cdn.example.com/ann.png",
			"attachment_count": float64(2),
		},
	}
}

func receive(t *testing.T, sub *stream.Subscription[domain.Notification]) domain.Notification {
	t.Helper()
	select {
	case n := <-sub.C():
		return n
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	return domain.Notification{}
}

func TestIsOwnedPush(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{}, nil, nil)

	tests := []struct {
		name    string
		payload map[string]any
		want    bool
	}{
		{"owned", ownedPayload(), true},
		{"json string section", map[string]any{"support": `{"ticket_id":"t-2"}`}, true},
		{"foreign", map[string]any{"aps": map[string]any{"alert": "hi"}, "other": 1}, false},
		{"nil section", map[string]any{"support": nil}, false},
		{"nil payload", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsOwnedPush(tt.payload))
		})
	}
}

func TestCustomNamespace(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{Namespace: "helpdesk"}, nil, nil)
	assert.False(t, r.IsOwnedPush(ownedPayload()))
	assert.True(t, r.IsOwnedPush(map[string]any{"helpdesk": map[string]any{"ticket_id": "t"}}))
}

func TestPresentationPolicy(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{}, nil, nil)

	assert.Equal(t, PresentSoundOnly, r.PresentationPolicy(ownedPayload(), AppState{ChatOpen: true}))
	assert.Equal(t, PresentSoundAndBanner, r.PresentationPolicy(ownedPayload(), AppState{}))
	assert.Equal(t, PresentSoundAndBanner, r.PresentationPolicy(map[string]any{"x": 1}, AppState{ChatOpen: true}))

	sub := r.Notifications()
	assert.Equal(t, PresentSoundOnly, r.PresentationPolicy(ownedPayload(), AppState{}))
	sub.Close()
	assert.Eventually(t, func() bool { return r.ObserverCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PresentSoundAndBanner, r.PresentationPolicy(ownedPayload(), AppState{}))
}

func TestParseSanitizesPreview(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{}, nil, nil)
	note, ok := r.Parse(ownedPayload())
	require.True(t, ok)
	assert.Equal(t, "t-1", note.TicketID)
	assert.Equal(t, "Ann", note.SenderName)
	assert.Equal(t, "Hello there & welcome", note.Preview)
	require.NotNil(t, note.AvatarURL)
	assert.Equal(t, "https://cdn.example.com/ann.png", *note.AvatarURL)
	require.NotNil(t, note.AttachmentCount)
	assert.Equal(t, 2, *note.AttachmentCount)
}

func TestParseFallsBackToAlert(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{}, nil, nil)
	note, ok := r.Parse(map[string]any{
		"aps":     map[string]any{"alert": map[string]any{"title": "Bot", "body": "We replied"}},
		"support": `{"ticket_id":"t-3","attachment_count":"1"}`,
	})
	require.True(t, ok)
	assert.Equal(t, "t-3", note.TicketID)
	assert.Equal(t, "Bot", note.SenderName)
	assert.Equal(t, "We replied", note.Preview)
	require.NotNil(t, note.AttachmentCount)
	assert.Equal(t, 1, *note.AttachmentCount)
	assert.Nil(t, note.AvatarURL)
}

func TestPreviewIsTruncated(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{}, nil, nil)
	long := strings.Repeat("a", 500)
	got := r.preview(long)
	assert.Equal(t, previewLimit, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestHandleTapEmitsDeepLink(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{}, nil, nil)
	sub := r.Notifications()
	defer sub.Close()

	note, err := r.HandleTap(context.Background(), ownedPayload())
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationDeepLink, note.Kind)

	got := receive(t, sub)
	assert.Equal(t, domain.NotificationDeepLink, got.Kind)
	assert.Equal(t, "t-1", got.TicketID)
}

func TestHandleTapRejectsForeignPayload(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{}, nil, nil)
	_, err := r.HandleTap(context.Background(), map[string]any{"aps": map[string]any{}})
	assert.True(t, apperrors.IsValidation(err))

	_, err = r.HandleTap(context.Background(), map[string]any{"support": map[string]any{"message": "no ticket"}})
	assert.True(t, apperrors.IsValidation(err))
}

func TestDispatchLiveSkipsOpenTicket(t *testing.T) {
	r := NewNotificationRouter(config.PushConfig{}, nil, nil)
	sub := r.Notifications()
	defer sub.Close()

	msgs := []domain.Message{
		{ID: "m-1", TicketID: "t-1", Sender: domain.Sender{Type: domain.SenderHumanAgent, Name: "Ann"}, Text: "on open ticket"},
		{ID: "m-2", TicketID: "t-2", Sender: domain.Sender{Type: domain.SenderAIAgent, Name: "Bot"}, Text: "elsewhere",
			Attachments: []domain.AttachmentReference{{ID: "a-1"}}},
		{ID: "m-3", TicketID: "t-2", Sender: domain.Sender{Type: domain.SenderCustomer}, Text: "mine"},
	}
	n := r.DispatchLive(msgs, AppState{ChatOpen: true, OpenTicketID: "t-1"})
	assert.Equal(t, 1, n)

	got := receive(t, sub)
	assert.Equal(t, domain.NotificationLive, got.Kind)
	assert.Equal(t, "t-2", got.TicketID)
	assert.Equal(t, "Bot", got.SenderName)
	require.NotNil(t, got.AttachmentCount)
	assert.Equal(t, 1, *got.AttachmentCount)

	assert.Equal(t, 2, r.DispatchLive(msgs, AppState{}))
	assert.Zero(t, r.DispatchLive(msgs, AppState{ChatOpen: true}))
}

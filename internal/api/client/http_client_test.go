package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-client/internal/api/dto"
	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/observability"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{
		WithTokenProvider(TokenProviderFunc(func(context.Context) (string, error) { return "tok-1", nil })),
		WithSDKVersion("1.2.3"),
	}, opts...)
	return NewHTTPClient(config.APIConfig{BaseURL: srv.URL, APIKey: "key-1", RequestTimeoutSeconds: 5}, opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetTicketsSendsHeadersAndDecodes(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tickets", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get(HeaderAPIKey))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "1.2.3", r.Header.Get(HeaderSDKVersion))
		writeJSON(w, http.StatusOK, dto.DataEnvelope[[]dto.TicketPreviewResponse]{Data: []dto.TicketPreviewResponse{
			{ID: "t-2", State: domain.TicketStateOpen, UnreadCount: 2, UpdatedAt: now},
			{ID: "t-1", State: domain.TicketStateClosed, UpdatedAt: now.Add(-time.Hour)},
		}})
	})

	previews, err := c.GetTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, previews, 2)
	assert.Equal(t, "t-2", previews[0].ID)
	assert.Equal(t, 2, previews[0].UnreadCount)
	assert.Equal(t, domain.TicketStateClosed, previews[1].State)
}

func TestOpenSessionIsAnonymous(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusCreated, dto.DataEnvelope[dto.SessionResponse]{Data: dto.SessionResponse{CustomerID: "c-1", Token: "jwt"}})
	}, WithTokenProvider(TokenProviderFunc(func(context.Context) (string, error) {
		t.Fatal("token requested for session open")
		return "", nil
	})))

	tok, err := c.OpenSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c-1", tok.CustomerID)
	assert.Equal(t, "jwt", tok.Token)
}

func TestGetBrandingNotModified(t *testing.T) {
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, since.Format(time.RFC3339Nano), r.URL.Query().Get("since"))
		w.WriteHeader(http.StatusNotModified)
	})

	branding, err := c.GetBranding(context.Background(), &since)
	require.NoError(t, err)
	assert.Nil(t, branding)
}

func TestGetBrandingChanged(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("since"))
		writeJSON(w, http.StatusOK, dto.DataEnvelope[dto.BrandingResponse]{Data: dto.BrandingResponse{Title: "Help"}})
	})

	branding, err := c.GetBranding(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, branding)
	assert.Equal(t, "Help", branding.Title)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(error) bool
		wantDelay  time.Duration
	}{
		{name: "validation", status: http.StatusUnprocessableEntity, check: apperrors.IsValidation},
		{name: "auth", status: http.StatusUnauthorized, check: apperrors.IsAuth},
		{name: "forbidden", status: http.StatusForbidden, check: apperrors.IsAuth},
		{name: "not found", status: http.StatusNotFound, check: apperrors.IsNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "7", check: apperrors.IsRateLimited, wantDelay: 7 * time.Second},
		{name: "server", status: http.StatusBadGateway, check: apperrors.IsServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				writeJSON(w, tt.status, dto.ErrorEnvelope{Error: dto.ErrorBody{Code: "X", Message: "boom"}})
			})
			_, err := c.GetTicket(context.Background(), "t-1")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
			assert.Equal(t, tt.wantDelay, apperrors.RetryAfterOf(err))
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(config.APIConfig{BaseURL: url, APIKey: "k"})
	_, err := c.GetTickets(context.Background())
	assert.True(t, apperrors.IsNetwork(err), "got %v", err)
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetTickets(ctx)
	assert.True(t, apperrors.IsNetwork(err), "got %v", err)
}

func TestLocalValidationSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })
	ctx := context.Background()

	_, err := c.SendMessage(ctx, "t-1", "   ", nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = c.SendMessage(ctx, "", "hi", nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = c.SendMessage(ctx, "t-1", "", []domain.Attachment{{Name: "empty.txt"}})
	assert.True(t, apperrors.IsValidation(err))

	_, err = c.CreateTicket(ctx, CreateTicketInput{Message: "", Channel: "ios", Device: domain.DeviceInfo{Platform: "ios"}})
	assert.True(t, apperrors.IsValidation(err))

	_, err = c.CreateTicket(ctx, CreateTicketInput{Message: "hi", Channel: "", Device: domain.DeviceInfo{Platform: "ios"}})
	assert.True(t, apperrors.IsValidation(err))

	err = c.UpdateDevice(ctx, DeviceUpdate{Token: ""})
	assert.True(t, apperrors.IsValidation(err))

	bad := "not-an-email"
	err = c.UpdateCustomer(ctx, CustomerUpdate{Email: &bad})
	assert.True(t, apperrors.IsValidation(err))

	assert.Zero(t, hits.Load())
}

func TestSendMessageMultipart(t *testing.T) {
	now := time.Now().UTC()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "see attached", r.FormValue("text"))
		files := r.MultipartForm.File["attachments"]
		require.Len(t, files, 1)
		assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))
		assert.Equal(t, "attachment-1.png", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, pngHeader, body)

		writeJSON(w, http.StatusCreated, dto.DataEnvelope[dto.MessageResponse]{Data: dto.MessageResponse{
			ID:        "m-9",
			Sender:    dto.SenderResponse{Type: domain.SenderCustomer, Name: "me"},
			Text:      "see attached",
			CreatedAt: now,
			Attachments: []dto.AttachmentResponse{
				{ID: "a-1", FileName: "attachment-1.png", MimeType: "image/png", SizeBytes: int64(len(pngHeader)), URL: "/v1/attachments/a-1"},
			},
		}})
	})

	msg, err := c.SendMessage(context.Background(), "t-1", " see attached ", []domain.Attachment{{Data: pngHeader}})
	require.NoError(t, err)
	assert.Equal(t, "m-9", msg.ID)
	assert.Equal(t, "t-1", msg.TicketID)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "image/png", msg.Attachments[0].MimeType)
}

func TestCreateTicketMultipartPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		var payload dto.CreateTicketRequest
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("payload")), &payload))
		assert.Equal(t, "Need help", payload.Message)
		assert.Equal(t, "ios", payload.Channel)
		assert.Equal(t, "ios", payload.Device.Platform)
		assert.Len(t, r.MultipartForm.File["attachments"], 1)
		writeJSON(w, http.StatusCreated, dto.DataEnvelope[dto.TicketResponse]{Data: dto.TicketResponse{ID: "t-1", State: domain.TicketStateOpen}})
	})

	ticket, err := c.CreateTicket(context.Background(), CreateTicketInput{
		Message:     "Need help",
		Channel:     "ios",
		Device:      domain.DeviceInfo{Platform: "ios"},
		Attachments: []domain.Attachment{{Name: "log.txt", MimeType: "text/plain", Data: []byte("trace")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", ticket.ID)
	assert.Equal(t, domain.AssigneeNone, ticket.Assignee)
	assert.Empty(t, ticket.Schedules)
}

func TestTokenErrorAbortsRequest(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) },
		WithTokenProvider(TokenProviderFunc(func(context.Context) (string, error) {
			return "", apperrors.NewUnauthorized("logged out")
		})))

	err := c.MarkTicketRead(context.Background(), "t-1")
	assert.True(t, apperrors.IsAuth(err))
	assert.Zero(t, hits.Load())
}

func TestMetricsRecorded(t *testing.T) {
	metrics := observability.NewMetrics()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, WithMetrics(metrics))

	require.NoError(t, c.MarkTicketRead(context.Background(), "t-1"))
	require.NoError(t, c.MarkTicketRead(context.Background(), "t-2"))
	assert.Equal(t, int64(2), metrics.Snapshot().RequestTotal("/v1/tickets/:id/read", http.MethodPost))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.True(t, d > 50*time.Second && d <= time.Minute, "got %v", d)
}

func TestMockCountsCalls(t *testing.T) {
	m := &Mock{}
	_, _ = m.GetTickets(context.Background())
	_, _ = m.GetTickets(context.Background())
	assert.Equal(t, 2, m.Calls("GetTickets"))
	assert.Zero(t, m.Calls("SendMessage"))
}

func TestMockDefaults(t *testing.T) {
	m := &Mock{}
	ctx := context.Background()

	tok, err := m.OpenSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mock-customer", tok.CustomerID)

	branding, err := m.GetBranding(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, branding, "nil means not modified")

	ticket, err := m.GetTicket(ctx, "t-9")
	require.NoError(t, err)
	assert.Equal(t, "t-9", ticket.ID)

	m.MarkTicketReadFunc = func(ctx context.Context, ticketID string) error { return errors.New("boom") }
	assert.EqualError(t, m.MarkTicketRead(ctx, "t-9"), "boom")
	assert.Equal(t, 1, m.Calls("MarkTicketRead"))
}

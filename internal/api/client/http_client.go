package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/api/dto"
	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/observability"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// Header names of the wire contract.
const (
	HeaderAPIKey     = "X-API-Key"
	HeaderSDKVersion = "X-SDK-Version"
)

const maxErrorBody = 64 << 10

// HTTPClient implements APIClient and SessionOpener over HTTP/JSON.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	sdkVersion string
	http       *http.Client
	tokens     TokenProvider
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithTokenProvider sets the bearer token source.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *HTTPClient) { c.tokens = p }
}

// WithMetrics records per-endpoint request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *HTTPClient) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *HTTPClient) { c.logger = l }
}

// WithSDKVersion sets the X-SDK-Version header.
func WithSDKVersion(v string) Option {
	return func(c *HTTPClient) { c.sdkVersion = v }
}

// NewHTTPClient builds a client for the configured backend. The transport
// timeout from cfg surfaces as a NETWORK_ERROR.
func NewHTTPClient(cfg config.APIConfig, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout()},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenProvider installs the bearer token source after construction.
func (c *HTTPClient) SetTokenProvider(p TokenProvider) {
	c.tokens = p
}

type request struct {
	method      string
	route       string
	path        string
	query       url.Values
	body        []byte
	contentType string
	anonymous   bool
}

// OpenSession starts an anonymous backend session (POST /v1/sessions). Only the API key is sent.
func (c *HTTPClient) OpenSession(ctx context.Context) (domain.SessionToken, error) {
	var out dto.DataEnvelope[dto.SessionResponse]
	if _, err := c.do(ctx, request{
		method:    http.MethodPost,
		route:     "/v1/sessions",
		path:      "/v1/sessions",
		anonymous: true,
	}, &out); err != nil {
		return domain.SessionToken{}, err
	}
	return domain.SessionToken{
		CustomerID: out.Data.CustomerID,
		Token:      out.Data.Token,
		ExpiresAt:  out.Data.ExpiresAt,
	}, nil
}

// GetBranding fetches the chat branding. It returns nil, nil when the backend
// reports no change since since.
func (c *HTTPClient) GetBranding(ctx context.Context, since *time.Time) (*domain.Branding, error) {
	req := request{method: http.MethodGet, route: "/v1/branding", path: "/v1/branding", anonymous: true}
	if since != nil && !since.IsZero() {
		req.query = url.Values{"since": []string{since.UTC().Format(time.RFC3339Nano)}}
	}
	var out dto.DataEnvelope[dto.BrandingResponse]
	status, err := c.do(ctx, req, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotModified {
		return nil, nil
	}
	branding := out.Data.ToDomain()
	return &branding, nil
}

// CreateTicket opens a ticket, as multipart when attachments are present.
func (c *HTTPClient) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	payload := dto.CreateTicketRequest{
		Message: strings.TrimSpace(input.Message),
		Channel: input.Channel,
		Device: dto.DeviceInfoPayload{
			Platform:   input.Device.Platform,
			OSVersion:  input.Device.OSVersion,
			Model:      input.Device.Model,
			AppVersion: input.Device.AppVersion,
			Locale:     input.Device.Locale,
		},
	}
	if payload.Message == "" {
		return nil, apperrors.NewValidationError("message required", map[string]any{"message": "required"})
	}
	if err := dto.Validate(payload); err != nil {
		return nil, err
	}
	if err := validateAttachments(input.Attachments); err != nil {
		return nil, err
	}

	req := request{method: http.MethodPost, route: "/v1/tickets", path: "/v1/tickets"}
	if len(input.Attachments) > 0 {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode ticket payload: %w", err)
		}
		req.body, req.contentType, err = encodeMultipart(map[string]string{"payload": string(encoded)}, input.Attachments)
		if err != nil {
			return nil, err
		}
	} else if err := req.setJSON(payload); err != nil {
		return nil, err
	}

	var out dto.DataEnvelope[dto.TicketResponse]
	if _, err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	ticket := out.Data.ToDomain()
	return &ticket, nil
}

// GetTicket fetches one ticket with its full thread.
func (c *HTTPClient) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("ticket id required", nil)
	}
	var out dto.DataEnvelope[dto.TicketResponse]
	if _, err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/v1/tickets/:id",
		path:   "/v1/tickets/" + url.PathEscape(ticketID),
	}, &out); err != nil {
		return nil, err
	}
	ticket := out.Data.ToDomain()
	return &ticket, nil
}

// GetTickets lists the customer's tickets, most recent activity first.
func (c *HTTPClient) GetTickets(ctx context.Context) ([]domain.TicketPreview, error) {
	var out dto.DataEnvelope[[]dto.TicketPreviewResponse]
	if _, err := c.do(ctx, request{method: http.MethodGet, route: "/v1/tickets", path: "/v1/tickets"}, &out); err != nil {
		return nil, err
	}
	previews := make([]domain.TicketPreview, 0, len(out.Data))
	for _, p := range out.Data {
		previews = append(previews, p.ToDomain())
	}
	return previews, nil
}

// SendMessage posts a message; text or at least one attachment is required.
func (c *HTTPClient) SendMessage(ctx context.Context, ticketID, text string, attachments []domain.Attachment) (*domain.Message, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("ticket id required", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, apperrors.NewValidationError("text or attachments required", nil)
	}
	if err := validateAttachments(attachments); err != nil {
		return nil, err
	}

	req := request{
		method: http.MethodPost,
		route:  "/v1/tickets/:id/messages",
		path:   "/v1/tickets/" + url.PathEscape(ticketID) + "/messages",
	}
	if len(attachments) > 0 {
		var err error
		req.body, req.contentType, err = encodeMultipart(map[string]string{"text": text}, attachments)
		if err != nil {
			return nil, err
		}
	} else if err := req.setJSON(dto.SendMessageRequest{Text: text}); err != nil {
		return nil, err
	}

	var out dto.DataEnvelope[dto.MessageResponse]
	if _, err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	msg := out.Data.ToDomain()
	if msg.TicketID == "" {
		msg.TicketID = ticketID
	}
	return &msg, nil
}

// UpdateCustomer patches customer properties. Nil fields are left unchanged.
func (c *HTTPClient) UpdateCustomer(ctx context.Context, update CustomerUpdate) error {
	payload := dto.UpdateCustomerRequest{Email: update.Email, OriginalID: update.OriginalID}
	if err := dto.Validate(payload); err != nil {
		return err
	}
	req := request{method: http.MethodPatch, route: "/v1/customer", path: "/v1/customer"}
	if err := req.setJSON(payload); err != nil {
		return err
	}
	_, err := c.do(ctx, req, nil)
	return err
}

// UpdateDevice binds a push token to the session.
func (c *HTTPClient) UpdateDevice(ctx context.Context, update DeviceUpdate) error {
	payload := dto.UpdateDeviceRequest{DeviceToken: strings.TrimSpace(update.Token), OriginalID: update.OriginalID}
	if err := dto.Validate(payload); err != nil {
		return err
	}
	req := request{method: http.MethodPut, route: "/v1/device", path: "/v1/device"}
	if err := req.setJSON(payload); err != nil {
		return err
	}
	_, err := c.do(ctx, req, nil)
	return err
}

// MarkTicketRead sends a read receipt for every agent message of the ticket.
func (c *HTTPClient) MarkTicketRead(ctx context.Context, ticketID string) error {
	if strings.TrimSpace(ticketID) == "" {
		return apperrors.NewValidationError("ticket id required", nil)
	}
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "/v1/tickets/:id/read",
		path:   "/v1/tickets/" + url.PathEscape(ticketID) + "/read",
	}, nil)
	return err
}

func (r *request) setJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	r.body = body
	r.contentType = "application/json"
	return nil
}

// do executes req and decodes a 2xx body into out. It returns the HTTP status.
func (c *HTTPClient) do(ctx context.Context, req request, out any) (int, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderAPIKey, c.apiKey)
	if c.sdkVersion != "" {
		httpReq.Header.Set(HeaderSDKVersion, c.sdkVersion)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if !req.anonymous && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, err
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordRequest(req.route, req.method, 0, elapsed)
		c.metrics.RecordError(req.route, req.method, apperrors.CodeNetwork)
		c.logger.Debug("request failed", zap.String("route", req.route), zap.Error(err))
		return 0, apperrors.NewNetworkError(err)
	}
	defer resp.Body.Close()
	c.metrics.RecordRequest(req.route, req.method, resp.StatusCode, elapsed)
	c.logger.Debug("request",
		zap.String("method", req.method),
		zap.String("route", req.route),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", elapsed),
	)

	if resp.StatusCode == http.StatusNotModified {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		mapped := decodeError(resp)
		c.metrics.RecordError(req.route, req.method, apperrors.CodeOf(mapped))
		return resp.StatusCode, mapped
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return resp.StatusCode, apperrors.NewNetworkError(err)
		}
		return resp.StatusCode, apperrors.NewServerError(resp.StatusCode, "malformed response body")
	}
	return resp.StatusCode, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope dto.ErrorEnvelope
	message := ""
	if err := json.Unmarshal(raw, &envelope); err == nil {
		message = envelope.Error.Message
	}
	mapped := apperrors.FromHTTPStatus(resp.StatusCode, message, parseRetryAfter(resp.Header.Get("Retry-After")))
	var de *apperrors.DomainError
	if errors.As(mapped, &de) && len(envelope.Error.Details) > 0 {
		de.Details = envelope.Error.Details
	}
	return mapped
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func validateAttachments(attachments []domain.Attachment) error {
	for i, att := range attachments {
		if len(att.Data) == 0 {
			return apperrors.NewValidationError("attachment is empty", map[string]any{"index": i, "name": att.Name})
		}
	}
	return nil
}

// encodeMultipart writes fields followed by one "attachments" part per file.
func encodeMultipart(fields map[string]string, attachments []domain.Attachment) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	for i, att := range attachments {
		mimeType, name := describeAttachment(att, i)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachments"; filename="%s"`, escapeQuotes(name)))
		header.Set("Content-Type", mimeType)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create attachment part: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, "", fmt.Errorf("write attachment: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// describeAttachment fills in a missing MIME type or file name from content sniffing.
func describeAttachment(att domain.Attachment, index int) (string, string) {
	mimeType := att.MimeType
	name := strings.TrimSpace(att.Name)
	if mimeType == "" || name == "" {
		detected := mimetype.Detect(att.Data)
		if mimeType == "" {
			mimeType = detected.String()
		}
		if name == "" {
			name = fmt.Sprintf("attachment-%d%s", index+1, detected.Extension())
		}
	}
	return mimeType, name
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-client/internal/api/dto"
	"github.com/spec-kit/support-client/internal/auth"
	"github.com/spec-kit/support-client/internal/sandbox"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// HeaderChannel optionally names the channel a session is opened from.
const HeaderChannel = "X-Support-Channel"

// SessionHandler exposes session, branding and customer endpoints.
type SessionHandler struct {
	backend *sandbox.Backend
	tokens  *auth.TokenManager
}

// NewSessionHandler constructs handler.
func NewSessionHandler(backend *sandbox.Backend, tokens *auth.TokenManager) *SessionHandler {
	return &SessionHandler{backend: backend, tokens: tokens}
}

// OpenSession handles POST /v1/sessions.
func (h *SessionHandler) OpenSession(c *fiber.Ctx) error {
	channel := c.Get(HeaderChannel)
	customer := h.backend.OpenSession(c.UserContext(), channel)
	token, exp, err := h.tokens.GenerateToken(customer.ID, channel)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.Status(http.StatusCreated).JSON(dto.DataEnvelope[dto.SessionResponse]{
		Data: dto.SessionResponse{CustomerID: customer.ID, Token: token, ExpiresAt: exp},
	})
}

// Branding handles GET /v1/branding; 304 when unchanged since ?since.
func (h *SessionHandler) Branding(c *fiber.Ctx) error {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return apperrors.NewValidationError("invalid since", map[string]any{"since": "must be RFC3339"})
		}
		since = &t
	}
	branding := h.backend.Branding(c.UserContext(), since)
	if branding == nil {
		return c.SendStatus(http.StatusNotModified)
	}
	return c.JSON(dto.DataEnvelope[dto.BrandingResponse]{Data: dto.FromBranding(*branding)})
}

// UpdateCustomer handles PATCH /v1/customer.
func (h *SessionHandler) UpdateCustomer(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	if err := h.backend.UpdateCustomer(c.UserContext(), customerID, req.Email, req.OriginalID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// UpdateDevice handles PUT /v1/device.
func (h *SessionHandler) UpdateDevice(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	if err := h.backend.UpdateDevice(c.UserContext(), customerID, req.DeviceToken, req.OriginalID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

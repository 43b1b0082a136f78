package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-client/internal/api/dto"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/sandbox"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// AgentHandler simulates the agent side of the sandbox backend.
type AgentHandler struct {
	backend *sandbox.Backend
}

// NewAgentHandler constructs handler.
func NewAgentHandler(backend *sandbox.Backend) *AgentHandler {
	return &AgentHandler{backend: backend}
}

// Reply POST /v1/sandbox/tickets/:id/replies.
func (h *AgentHandler) Reply(c *fiber.Ctx) error {
	var req dto.AgentReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	sender := domain.Sender{
		Type:      domain.SenderType(req.SenderType),
		Name:      req.SenderName,
		AvatarURL: req.AvatarURL,
	}
	msg, err := h.backend.AgentReply(c.UserContext(), c.Params("id"), sender, req.Text, domain.AssigneeType(req.Assignee))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.DataEnvelope[dto.MessageResponse]{Data: dto.FromMessage(msg)})
}

// SetState PUT /v1/sandbox/tickets/:id/state.
func (h *AgentHandler) SetState(c *fiber.Ctx) error {
	var req dto.UpdateTicketStateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	ticket, err := h.backend.SetTicketState(c.UserContext(), c.Params("id"), domain.TicketState(req.State))
	if err != nil {
		return err
	}
	return c.JSON(dto.DataEnvelope[dto.TicketResponse]{Data: dto.FromTicket(ticket)})
}

// SetBranding PUT /v1/sandbox/branding.
func (h *AgentHandler) SetBranding(c *fiber.Ctx) error {
	var req dto.BrandingResponse
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Title == "" {
		return apperrors.NewValidationError("title required", map[string]any{"title": "required"})
	}
	branding := h.backend.SetBranding(req.ToDomain())
	return c.JSON(dto.DataEnvelope[dto.BrandingResponse]{Data: dto.FromBranding(branding)})
}

package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-client/internal/api/dto"
	"github.com/spec-kit/support-client/internal/auth"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/sandbox"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// maxAttachmentBytes bounds a single uploaded file.
const maxAttachmentBytes = 10 << 20

// TicketsHandler manages customer ticket endpoints.
type TicketsHandler struct {
	backend *sandbox.Backend
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(backend *sandbox.Backend) *TicketsHandler {
	return &TicketsHandler{backend: backend}
}

// CreateTicket POST /v1/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	var attachments []domain.Attachment
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart payload", nil)
		}
		payload := form.Value["payload"]
		if len(payload) == 0 {
			return apperrors.NewValidationError("payload required", map[string]any{"payload": "required"})
		}
		if err := json.Unmarshal([]byte(payload[0]), &req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		if attachments, err = readAttachments(form.File["attachments"]); err != nil {
			return err
		}
	} else if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	device := domain.DeviceInfo{
		Platform:   req.Device.Platform,
		OSVersion:  req.Device.OSVersion,
		Model:      req.Device.Model,
		AppVersion: req.Device.AppVersion,
		Locale:     req.Device.Locale,
	}
	ticket, err := h.backend.CreateTicket(c.UserContext(), customerID, req.Message, req.Channel, device, attachments)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.DataEnvelope[dto.TicketResponse]{Data: dto.FromTicket(ticket)})
}

// ListTickets GET /v1/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return err
	}
	previews := h.backend.Tickets(c.UserContext(), customerID)
	items := make([]dto.TicketPreviewResponse, 0, len(previews))
	for _, p := range previews {
		items = append(items, dto.FromPreview(p))
	}
	return c.JSON(dto.DataEnvelope[[]dto.TicketPreviewResponse]{Data: items})
}

// GetTicket GET /v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return err
	}
	ticket, err := h.backend.Ticket(c.UserContext(), customerID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.DataEnvelope[dto.TicketResponse]{Data: dto.FromTicket(ticket)})
}

// AddMessage POST /v1/tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return err
	}
	var text string
	var attachments []domain.Attachment
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart payload", nil)
		}
		if v := form.Value["text"]; len(v) > 0 {
			text = v[0]
		}
		if attachments, err = readAttachments(form.File["attachments"]); err != nil {
			return err
		}
	} else {
		var req dto.SendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		text = req.Text
	}

	msg, err := h.backend.AddCustomerMessage(c.UserContext(), customerID, c.Params("id"), text, attachments)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.DataEnvelope[dto.MessageResponse]{Data: dto.FromMessage(msg)})
}

// MarkRead POST /v1/tickets/:id/read.
func (h *TicketsHandler) MarkRead(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return err
	}
	if err := h.backend.MarkRead(c.UserContext(), customerID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// GetAttachment GET /v1/attachments/:id.
func (h *TicketsHandler) GetAttachment(c *fiber.Ctx) error {
	att, err := h.backend.Attachment(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, att.MimeType)
	if att.Name != "" {
		c.Set(fiber.HeaderContentDisposition, `inline; filename="`+strings.ReplaceAll(att.Name, `"`, "")+`"`)
	}
	return c.Send(att.Data)
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

func readAttachments(files []*multipart.FileHeader) ([]domain.Attachment, error) {
	out := make([]domain.Attachment, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxAttachmentBytes {
			return nil, apperrors.NewValidationError("attachment too large", map[string]any{"file_name": fh.Filename})
		}
		f, err := fh.Open()
		if err != nil {
			return nil, apperrors.NewValidationError("unreadable attachment", map[string]any{"file_name": fh.Filename})
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, apperrors.NewValidationError("unreadable attachment", map[string]any{"file_name": fh.Filename})
		}
		if len(data) == 0 {
			return nil, apperrors.NewValidationError("attachment is empty", map[string]any{"file_name": fh.Filename})
		}
		out = append(out, domain.Attachment{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return out, nil
}

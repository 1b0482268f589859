package messaging

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/internal/auth"
	"github.com/aldoetobex/bufete-backend/pkg/validation"
)

type SendRequestDTO struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	CaseID      string `json:"case_id" validate:"omitempty,uuid"`
	Subject     string `json:"subject" validate:"max=200"`
	Body        string `json:"body" validate:"max=5000"` // emptiness is a domain rule
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Recipients godoc
// @Summary      Eligible recipients
// @Description  Users the caller may write to
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   models.User
// @Failure      401  {object}  models.ErrorResponse
// @Router       /messages/recipients [get]
func (h *Handler) Recipients(c *fiber.Ctx) error {
	list, err := h.svc.Recipients(c.UserContext(), auth.MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// Send godoc
// @Summary      Send message
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  SendRequestDTO  true  "Message payload"
// @Success      201  {object}  models.Message
// @Failure      400  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ErrorResponse  "INVALID_RECIPIENT"
// @Router       /messages [post]
func (h *Handler) Send(c *fiber.Ctx) error {
	var in SendRequestDTO
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	req := SendRequest{
		RecipientID: uuid.MustParse(in.RecipientID),
		Subject:     in.Subject,
		Body:        in.Body,
	}
	if in.CaseID != "" {
		id := uuid.MustParse(in.CaseID)
		req.CaseID = &id
	}

	m, err := h.svc.Send(c.UserContext(), auth.MustActor(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// Inbox godoc
// @Summary      Inbox
// @Description  Messages addressed to the caller, most recent first, with unread count
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Inbox
// @Router       /messages/inbox [get]
func (h *Handler) Inbox(c *fiber.Ctx) error {
	in, err := h.svc.Inbox(c.UserContext(), auth.MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(in)
}

// Get godoc
// @Summary      Message detail
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "message id (uuid)"
// @Success      200  {object}  models.Message
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /messages/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid message id")
	}
	m, err := h.svc.Get(c.UserContext(), auth.MustActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(m)
}

// MarkRead godoc
// @Summary      Mark message as read
// @Tags         messages
// @Security     BearerAuth
// @Param        id   path string true "message id (uuid)"
// @Success      204
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /messages/{id}/read [post]
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid message id")
	}
	if err := h.svc.MarkRead(c.UserContext(), auth.MustActor(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

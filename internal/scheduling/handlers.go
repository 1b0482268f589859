package scheduling

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/internal/auth"
	"github.com/aldoetobex/bufete-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type BookRequestDTO struct {
	LawyerID string `json:"lawyer_id" validate:"omitempty,uuid"` // lawyers default to themselves
	ClientID string `json:"client_id" validate:"required,uuid"`
	CaseID   string `json:"case_id" validate:"omitempty,uuid"`
	Date     string `json:"date" validate:"required,isodate"` // YYYY-MM-DD
	Time     string `json:"time" validate:"required,hhmm"`    // HH:MM
	Motive   string `json:"motive" validate:"required,max=200"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

/* ================================ Book ================================== */

// Book godoc
// @Summary      Book appointment
// @Description  Lawyer (or administrator) books an exact date/time slot with a client
// @Tags         appointments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  BookRequestDTO  true  "Appointment payload"
// @Success      201  {object}  models.Appointment
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "SLOT_UNAVAILABLE"
// @Router       /appointments [post]
func (h *Handler) Book(c *fiber.Ctx) error {
	var in BookRequestDTO
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	actor := auth.MustActor(c)
	req := BookRequest{
		ClientID: uuid.MustParse(in.ClientID),
		Time:     in.Time,
		Motive:   in.Motive,
		Notes:    in.Notes,
	}
	req.Date, _ = time.Parse(time.DateOnly, in.Date)
	switch {
	case in.LawyerID != "":
		req.LawyerID = uuid.MustParse(in.LawyerID)
	case actor.IsLawyer():
		req.LawyerID = actor.ProfileID
	default:
		return fiber.NewError(fiber.StatusBadRequest, "lawyer_id is required")
	}
	if in.CaseID != "" {
		id := uuid.MustParse(in.CaseID)
		req.CaseID = &id
	}

	a, err := h.svc.Book(c.UserContext(), actor, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

/* ================================ Reads ================================= */

// List godoc
// @Summary      My appointments
// @Description  Appointments the caller takes part in, by date then time
// @Tags         appointments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   models.Appointment
// @Failure      401  {object}  models.ErrorResponse
// @Router       /appointments [get]
func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.svc.ListFor(c.UserContext(), auth.MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// Upcoming godoc
// @Summary      Upcoming appointments
// @Description  Scheduled appointments of a lawyer from today on, filtered to what the caller may see
// @Tags         appointments
// @Security     BearerAuth
// @Produce      json
// @Param        lawyer_id  query  string  false  "lawyer profile id (defaults to the caller)"
// @Success      200  {array}   models.Appointment
// @Failure      400  {object}  models.ErrorResponse
// @Router       /appointments/upcoming [get]
func (h *Handler) Upcoming(c *fiber.Ctx) error {
	var lawyerID uuid.UUID
	if q := c.Query("lawyer_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid lawyer_id")
		}
		lawyerID = id
	}
	list, err := h.svc.Upcoming(c.UserContext(), auth.MustActor(c), lawyerID)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

/* ============================ State changes ============================= */

// Cancel godoc
// @Summary      Cancel appointment
// @Tags         appointments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "appointment id (uuid)"
// @Success      200  {object}  models.Appointment
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "INVALID_TRANSITION"
// @Router       /appointments/{id}/cancel [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid appointment id")
	}
	a, err := h.svc.Cancel(c.UserContext(), auth.MustActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(a)
}

// Complete godoc
// @Summary      Complete appointment
// @Tags         appointments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "appointment id (uuid)"
// @Success      200  {object}  models.Appointment
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "INVALID_TRANSITION"
// @Router       /appointments/{id}/complete [post]
func (h *Handler) Complete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid appointment id")
	}
	a, err := h.svc.Complete(c.UserContext(), auth.MustActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(a)
}

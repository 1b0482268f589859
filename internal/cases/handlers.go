package cases

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/internal/auth"
	"github.com/aldoetobex/bufete-backend/pkg/models"
	"github.com/aldoetobex/bufete-backend/pkg/validation"
)

// ===== DTOs =====

type CreateCaseRequest struct {
	ClientID    string `json:"client_id" validate:"required,uuid"`
	LawyerID    string `json:"lawyer_id" validate:"omitempty,uuid"` // lawyers default to themselves
	Title       string `json:"title" validate:"required,max=120"`
	Type        string `json:"type" validate:"required,max=40"`
	Description string `json:"description" validate:"max=2000"`
	StartDate   string `json:"start_date" validate:"omitempty,isodate"` // YYYY-MM-DD
	BudgetCents *int64 `json:"budget_cents"`
}

type TransitionRequest struct {
	To     string `json:"to" validate:"required,max=20"` // state names are checked after access
	Reason string `json:"reason" validate:"max=500"`
}

// CaseDetail is a case plus the states the caller could move it to.
type CaseDetail struct {
	models.Case
	NextStates []models.CaseState `json:"next_states"`
}

type PageCases = models.Page[models.Case]

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

func parseID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	return id, nil
}

// Create Case godoc
// @Summary      Assign case
// @Description  Administrator or lawyer opens a case between an active client and an active lawyer
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCaseRequest  true  "Case payload"
// @Success      201  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	// Validation (Laravel-style response)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	actor := auth.MustActor(c)
	req := AssignRequest{
		ClientID:    uuid.MustParse(in.ClientID),
		Title:       strings.TrimSpace(in.Title),
		Type:        strings.TrimSpace(in.Type),
		Description: strings.TrimSpace(in.Description),
		BudgetCents: in.BudgetCents,
	}
	switch {
	case in.LawyerID != "":
		req.LawyerID = uuid.MustParse(in.LawyerID)
	case actor.IsLawyer():
		req.LawyerID = actor.ProfileID
	default:
		return fiber.NewError(fiber.StatusBadRequest, "lawyer_id is required")
	}
	if in.StartDate != "" {
		req.StartDate, _ = time.Parse(time.DateOnly, in.StartDate)
	}

	cs, err := h.svc.Assign(c.UserContext(), actor, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cs)
}

// List Cases godoc
// @Summary      List cases
// @Description  Cases visible to the caller, newest first (paginated)
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        state     query string false "comma separated states"
// @Success      200  {object}  PageCases
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := parsePage(c)

	var states []models.CaseState
	for _, s := range strings.Split(c.Query("state"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			st := models.CaseState(s)
			if !st.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "unknown state "+s)
			}
			states = append(states, st)
		}
	}

	all, err := h.svc.ListFor(c.UserContext(), auth.MustActor(c), states)
	if err != nil {
		return err
	}

	total := int64(len(all))
	from := min((page-1)*size, len(all))
	to := min(from+size, len(all))
	items := all[from:to]
	if items == nil {
		items = []models.Case{}
	}

	return c.JSON(PageCases{
		Page: page, PageSize: size, Total: total,
		Pages: int(math.Ceil(float64(total) / float64(size))),
		Items: items,
	})
}

// Get case detail
// @Summary      Case detail
// @Description  Case visible to the caller, with the states it may move to next
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  CaseDetail
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	actor := auth.MustActor(c)
	cs, err := h.svc.Get(c.UserContext(), actor, id)
	if err != nil {
		return err
	}

	next := []models.CaseState{}
	if !actor.IsClient() {
		next = NextStates(cs.State, actor.Role)
	}
	return c.JSON(CaseDetail{Case: *cs, NextStates: next})
}

// Transition godoc
// @Summary      Transition case
// @Description  Move a case along its lifecycle; administrators may force closure
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true  "case id (uuid)"
// @Param        payload  body  TransitionRequest  true  "Target state"
// @Success      200  {object}  models.Case
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      400  {object}  models.ErrorResponse  "unknown state"
// @Failure      409  {object}  models.ErrorResponse  "INVALID_TRANSITION or ALREADY_TERMINAL"
// @Router       /cases/{id}/transition [post]
func (h *Handler) Transition(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in TransitionRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cs, err := h.svc.Transition(c.UserContext(), auth.MustActor(c), id, models.CaseState(in.To), strings.TrimSpace(in.Reason))
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// History godoc
// @Summary      Case history
// @Description  Audit trail of a case, oldest first
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {array}   models.CaseHistory
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/history [get]
func (h *Handler) History(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	list, err := h.svc.History(c.UserContext(), auth.MustActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// Lawyer clients godoc
// @Summary      My clients
// @Description  Distinct clients across the lawyer's cases
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   models.ClientProfile
// @Failure      403  {object}  models.ErrorResponse
// @Router       /lawyer/clients [get]
func (h *Handler) LawyerClients(c *fiber.Ctx) error {
	list, err := h.svc.ClientsOf(c.UserContext(), auth.MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

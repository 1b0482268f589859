package reports

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/bufete-backend/internal/auth"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc, now: time.Now} }

// @Summary      Dashboard
// @Description  Totals and case count per state (administrator)
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Dashboard
// @Failure      403  {object}  models.ErrorResponse
// @Router       /reports/dashboard [get]
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	d, err := h.svc.Dashboard(c.UserContext(), auth.MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(d)
}

// @Summary      Case report
// @Description  Cases started in a date range with counts and success rate (administrator)
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        from  query string false "YYYY-MM-DD (default: 30 days ago)"
// @Param        to    query string false "YYYY-MM-DD (default: today)"
// @Success      200  {object}  CaseReport
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /reports/cases [get]
func (h *Handler) Cases(c *fiber.Ctx) error {
	to := h.now()
	from := to.AddDate(0, 0, -30)
	if q := c.Query("from"); q != "" {
		t, err := time.Parse(time.DateOnly, q)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		from = t
	}
	if q := c.Query("to"); q != "" {
		t, err := time.Parse(time.DateOnly, q)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		to = t
	}
	r, err := h.svc.Cases(c.UserContext(), auth.MustActor(c), from, to)
	if err != nil {
		return err
	}
	return c.JSON(r)
}

// @Summary      Lawyer performance
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   LawyerStats
// @Failure      403  {object}  models.ErrorResponse
// @Router       /reports/lawyers [get]
func (h *Handler) Lawyers(c *fiber.Ctx) error {
	list, err := h.svc.Lawyers(c.UserContext(), auth.MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// @Summary      Financial summary
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Financial
// @Failure      403  {object}  models.ErrorResponse
// @Router       /reports/financial [get]
func (h *Handler) Financial(c *fiber.Ctx) error {
	f, err := h.svc.Financial(c.UserContext(), auth.MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(f)
}

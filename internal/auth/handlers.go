package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/internal/directory"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/models"
	"github.com/aldoetobex/bufete-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Profile fields shared by /signup and POST /users
type ProfileFields struct {
	Name     string `json:"name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	// Lawyer only
	Specialty       string `json:"specialty" validate:"max=80"`
	LicenseNumber   string `json:"license_number" validate:"omitempty,license"`
	ExperienceYears int    `json:"experience_years" validate:"gte=0,lte=70"`
	// Client only
	Address    string `json:"address" validate:"max=200"`
	NationalID string `json:"national_id" validate:"omitempty,nationalid"`
	BirthDate  string `json:"birth_date" validate:"omitempty,isodate"` // YYYY-MM-DD
	// Both
	Phone string `json:"phone" validate:"max=30"`
}

// Request body for /signup
type SignupRequest struct {
	Role string `json:"role" validate:"required,oneof=client lawyer"`
	ProfileFields
}

// Request body for POST /users (administrator)
type CreateUserRequest struct {
	Role string `json:"role" validate:"required,oneof=administrator lawyer client"`
	ProfileFields
}

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Request body for PATCH /users/:id/status
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// Standard auth response
type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

/* ============================== Handler ================================= */

type Handler struct {
	dir    *directory.Service
	tokens *Tokens
}

func NewHandler(dir *directory.Service, tokens *Tokens) *Handler {
	return &Handler{dir: dir, tokens: tokens}
}

func (p ProfileFields) registration(role models.Role) directory.Registration {
	reg := directory.Registration{
		Name:     strings.TrimSpace(p.Name),
		Email:    strings.ToLower(strings.TrimSpace(p.Email)),
		Password: p.Password,
		Role:     role,
	}
	switch role {
	case models.RoleLawyer:
		reg.Lawyer = &directory.LawyerDetails{
			Specialty:       strings.TrimSpace(p.Specialty),
			LicenseNumber:   strings.TrimSpace(p.LicenseNumber),
			ExperienceYears: p.ExperienceYears,
			Phone:           strings.TrimSpace(p.Phone),
		}
	case models.RoleClient:
		d := &directory.ClientDetails{
			Address:    strings.TrimSpace(p.Address),
			Phone:      strings.TrimSpace(p.Phone),
			NationalID: strings.TrimSpace(p.NationalID),
		}
		if t, err := time.Parse(time.DateOnly, p.BirthDate); err == nil {
			d.BirthDate = &t
		}
		reg.Client = d
	}
	return reg
}

/* =============================== Signup ================================= */

// @Summary      Sign up
// @Description  Register a new client or lawyer together with its profile
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /signup [post]
func (h *Handler) Signup(c *fiber.Ctx) error {
	var in SignupRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	// Validate request (Laravel-like error shape)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	acc, err := h.dir.Register(c.UserContext(), in.registration(models.Role(in.Role)))
	if err != nil {
		return err
	}

	// Issue JWT
	token, err := h.tokens.IssueToken(acc.Actor())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, Role: string(acc.User.Role)})
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive a JWT
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	acc, err := h.dir.Verify(c.UserContext(), in.Email, in.Password)
	if err != nil {
		return err
	}
	token, err := h.tokens.IssueToken(acc.Actor())
	if err != nil {
		return err
	}
	return c.JSON(AuthResponse{Token: token, Role: string(acc.User.Role)})
}

/* ================================= Me =================================== */

// @Summary      Get current user profile
// @Description  Return the authenticated user with its lawyer or client profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  directory.Profile
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	actor := MustActor(c)
	p, err := h.dir.Profile(c.UserContext(), actor.UserID)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	return c.JSON(p)
}

/* ============================ Administration ============================ */

// @Summary      List users
// @Description  Administrator lists accounts, optionally by role and status
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        role    query string false "administrator | lawyer | client"
// @Param        status  query string false "active | inactive"
// @Success      200  {array}   models.User
// @Failure      403  {object}  models.ErrorResponse
// @Router       /users [get]
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	f := store.UserFilter{
		Role:   models.Role(c.Query("role")),
		Status: models.UserStatus(c.Query("status")),
	}
	users, err := h.dir.ListUsers(c.UserContext(), MustActor(c), f)
	if err != nil {
		return err
	}
	return c.JSON(users)
}

// @Summary      Create user
// @Description  Administrator creates an account of any role
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateUserRequest  true  "User payload"
// @Success      201  {object}  map[string]string  "id, profile_id"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /users [post]
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var in CreateUserRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	acc, err := h.dir.CreateUser(c.UserContext(), MustActor(c), in.registration(models.Role(in.Role)))
	if err != nil {
		return err
	}
	out := fiber.Map{"id": acc.User.ID}
	if acc.ProfileID != uuid.Nil {
		out["profile_id"] = acc.ProfileID
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// @Summary      Activate or deactivate user
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "user id (uuid)"
// @Param        payload  body  StatusRequest  true  "Status payload"
// @Success      204
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /users/{id}/status [patch]
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}
	var in StatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if err := h.dir.SetStatus(c.UserContext(), MustActor(c), id, models.UserStatus(in.Status)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// @Summary      Active lawyers
// @Description  Pool of active lawyers for assignment (administrator, lawyer)
// @Tags         directory
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   models.LawyerProfile
// @Failure      403  {object}  models.ErrorResponse
// @Router       /directory/lawyers [get]
func (h *Handler) ActiveLawyers(c *fiber.Ctx) error {
	list, err := h.dir.ActiveLawyers(c.UserContext(), MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// @Summary      Active clients
// @Description  Pool of active clients for assignment (administrator, lawyer)
// @Tags         directory
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   models.ClientProfile
// @Failure      403  {object}  models.ErrorResponse
// @Router       /directory/clients [get]
func (h *Handler) ActiveClients(c *fiber.Ctx) error {
	list, err := h.dir.ActiveClients(c.UserContext(), MustActor(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

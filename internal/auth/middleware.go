package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub  string `json:"sub"`           // user ID
	Role string `json:"role"`          // administrator | lawyer | client
	Pid  string `json:"pid,omitempty"` // lawyer or client profile ID
	jwt.RegisteredClaims
}

/* ============================== JWT Helpers ============================= */

// Tokens signs and verifies HS256 access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for the actor (default lifetime 7 days).
func (t *Tokens) IssueToken(a access.Actor) (string, error) {
	now := t.now()
	claims := &Claims{
		Sub:  a.UserID.String(),
		Role: string(a.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if a.ProfileID != uuid.Nil {
		claims.Pid = a.ProfileID.String()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.secret)
}

// Parse verifies signature, algorithm and expiry.
func (t *Tokens) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, apperr.ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, apperr.ErrUnauthorized
	}
	return claims, nil
}

/* ============================== Middleware ============================== */

// UserLookup re-reads the account on every request.
type UserLookup interface {
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RequireAuth validates a Bearer JWT, rejects deactivated accounts and
// injects userID, role and profileID into the context.
func RequireAuth(tokens *Tokens, users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}
		claims, err := tokens.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return fiber.ErrUnauthorized
		}

		if users != nil {
			id, err := uuid.Parse(claims.Sub)
			if err != nil {
				return fiber.ErrUnauthorized
			}
			u, err := users.UserByID(c.UserContext(), id)
			if err != nil || !u.Active() {
				return fiber.NewError(fiber.StatusUnauthorized, "account inactive or missing")
			}
		}

		c.Locals("userID", claims.Sub)
		c.Locals("role", claims.Role)
		c.Locals("profileID", claims.Pid)
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v, ok := c.Locals("userID").(string); ok {
		return v
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) string {
	if v, ok := c.Locals("role").(string); ok {
		return v
	}
	panic(errors.New("role not in context"))
}

// MustActor builds the actor from the context locals set by RequireAuth.
func MustActor(c *fiber.Ctx) access.Actor {
	a := access.Actor{
		UserID: uuid.MustParse(MustUserID(c)),
		Role:   models.Role(MustRole(c)),
	}
	if pid, ok := c.Locals("profileID").(string); ok && pid != "" {
		a.ProfileID = uuid.MustParse(pid)
	}
	return a
}

// RequireRole ensures the authenticated user has one of the expected roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := models.Role(MustRole(c))
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.ErrForbidden
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// statusFor maps a domain error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case "FORBIDDEN":
		return fiber.StatusForbidden
	case "INVALID_TRANSITION", "ALREADY_TERMINAL", "SLOT_UNAVAILABLE", "CONFLICT":
		return fiber.StatusConflict
	case "INVALID_RECIPIENT":
		return fiber.StatusUnprocessableEntity
	case "INVALID_ARGUMENT":
		return fiber.StatusBadRequest
	case "NOT_FOUND":
		return fiber.StatusNotFound
	case "UNAUTHORIZED":
		return fiber.StatusUnauthorized
	case "UNAVAILABLE":
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler returns a global Fiber error handler with a consistent JSON shape.
// Domain errors keep their stable code; 5xx are logged.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// Defaults
		code := fiber.StatusInternalServerError
		msg := "Internal Server Error"
		label := ""

		var fe *fiber.Error
		switch {
		case apperr.Code(err) != "":
			label = apperr.Code(err)
			code = statusFor(label)
			msg = err.Error()
		case errors.As(err, &fe):
			code = fe.Code
			if strings.TrimSpace(fe.Message) != "" {
				msg = fe.Message
			} else {
				msg = fiber.ErrInternalServerError.Message
			}
		}
		if label == "" {
			label = httpCodeToString(code)
		}

		if code >= fiber.StatusInternalServerError && log != nil {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
			if code == fiber.StatusInternalServerError {
				msg = "Internal Server Error"
			}
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Code:    label,
			Error:   true,
			Message: msg,
		})
	}
}

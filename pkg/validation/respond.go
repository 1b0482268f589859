package validation

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/bufete-backend/pkg/models"
)

// Respond writes a 400 with the Laravel-style error map.
func Respond(c *fiber.Ctx, errs map[string][]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ValidationErrorResponse{
		Message: "Validation failed",
		Errors:  errs,
	})
}

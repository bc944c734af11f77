package handlers

import (
	"strconv"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/middleware"
	"bundlepay/internal/models"
	"bundlepay/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// bind parses the JSON body into v and validates it.
func bind(c *fiber.Ctx, v *validation.Validator, body interface{}) error {
	if err := c.BodyParser(body); err != nil {
		return apperrors.Validation("invalid request format", nil)
	}
	return v.Struct(c.UserContext(), body)
}

func claimsOf(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}

func idParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("invalid "+name, map[string]interface{}{name: c.Params(name)})
	}
	return uint(id), nil
}

package auth

import (
	"github.com/gofiber/fiber/v2"

	helper "examproctor_backend/internals/helpers"
)

// OnlyRoles allows the request through only when the role claim matches.
func OnlyRoles(message string, roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		if _, ok := allowed[helper.GetRoleFromToken(c)]; !ok {
			return fiber.NewError(fiber.StatusForbidden, message)
		}
		return c.Next()
	}
}

package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

// RequireRole ensures the actor holds need or a higher role.
func RequireRole(need domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !actor.Role.AtLeast(need) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return RequireRole(domain.RoleRequester)
}

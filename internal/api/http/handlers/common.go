package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sla-engine/internal/api/dto"
	"github.com/spec-kit/ticket-sla-engine/internal/auth"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(req)
}

func errorBody(e *apperrors.DomainError) fiber.Map {
	body := fiber.Map{"code": e.Code, "message": e.Message}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return body
}

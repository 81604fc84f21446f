package handlers

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sla-engine/internal/api/dto"
	"github.com/spec-kit/ticket-sla-engine/internal/sla"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

// PoliciesHandler exposes the SLA policy table read-only.
type PoliciesHandler struct {
	policies sla.PolicyTable
}

// NewPoliciesHandler constructs handler.
func NewPoliciesHandler(policies sla.PolicyTable) *PoliciesHandler {
	return &PoliciesHandler{policies: policies}
}

// ListPolicies GET /sla-policies.
func (h *PoliciesHandler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.policies.List(c.UserContext())
	if err != nil {
		return apperrors.NewDependencyError("sla policy", err)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Priority < policies[j].Priority })
	out := make([]dto.SLAPolicyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, dto.SLAPolicyResponse{
			ID:                p.ID,
			Priority:          p.Priority,
			ResponseMinutes:   p.ResponseMinutes,
			ResolutionMinutes: p.ResolutionMinutes,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

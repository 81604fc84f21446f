package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sla-engine/internal/api/dto"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/service"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle.
type TicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, assignmentService *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, assignments: assignmentService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /tickets/:id. A triage that hits a priority without an
// SLA policy is saved and answered with 422 carrying both the ticket and the error.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	patch := service.TicketPatch{
		Title:        req.Title,
		Description:  req.Description,
		DepartmentID: req.DepartmentID,
		CategoryID:   req.CategoryID,
		Priority:     req.Priority,
		AssigneeID:   req.AssigneeID,
	}
	if req.Status != nil {
		status := domain.TicketStatus(strings.ToUpper(*req.Status))
		patch.Status = &status
	}

	ticket, err := h.tickets.ApplyUpdate(c.UserContext(), actor, c.Params("id"), patch)
	if err != nil {
		if ticket != nil && apperrors.IsCode(err, apperrors.CodePolicyGap) {
			gap := apperrors.ToDomainError(err)
			return c.Status(gap.HTTPStatus).JSON(fiber.Map{
				"data":  dto.NewTicketResponse(ticket),
				"error": errorBody(gap),
			})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.assignments.Assign(c.UserContext(), actor, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	status := domain.TicketStatus(strings.ToUpper(req.Status))
	ticket, err := h.tickets.ChangeStatus(c.UserContext(), actor, c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ArchiveTicket POST /tickets/:id/archive.
func (h *TicketsHandler) ArchiveTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.ArchiveTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// RestoreTicket POST /tickets/:id/restore.
func (h *TicketsHandler) RestoreTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.RestoreTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetAuditTrail GET /tickets/:id/audit.
func (h *TicketsHandler) GetAuditTrail(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.GetAuditTrail(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuditEntryResponses(entries)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	page, err := h.tickets.ListTickets(c.UserContext(), actor, query)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewTicketResponse(&page.Items[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketPageResponse{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}})
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListQuery, error) {
	query := service.TicketListQuery{
		Search:          c.Query("q"),
		Sort:            c.Query("sort"),
		IncludeArchived: c.QueryBool("include_archived", false),
		ViolatedOnly:    c.QueryBool("violated", false),
		Page:            parseInt(c.Query("page"), 1),
		PageSize:        parseInt(c.Query("page_size"), 20),
	}
	for _, part := range splitList(c.Query("status")) {
		query.Statuses = append(query.Statuses, domain.TicketStatus(strings.ToUpper(part)))
	}
	query.Priorities = splitList(c.Query("priority"))
	query.DepartmentID = optional(c.Query("department_id"))
	query.CategoryID = optional(c.Query("category_id"))
	query.AssigneeID = optional(c.Query("assignee_id"))
	query.RequesterID = optional(c.Query("requester_id"))

	var err error
	if query.CreatedFrom, err = parseTime("created_from", c.Query("created_from")); err != nil {
		return query, err
	}
	if query.CreatedTo, err = parseTime("created_to", c.Query("created_to")); err != nil {
		return query, err
	}
	return query, nil
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optional(val string) *string {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}
	return &val
}

func parseTime(name, val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid timestamp", map[string]any{name: val})
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

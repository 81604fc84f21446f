package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/audit"
	"github.com/spec-kit/ticket-sla-engine/internal/cache"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/events"
	"github.com/spec-kit/ticket-sla-engine/internal/repository"
	"github.com/spec-kit/ticket-sla-engine/internal/sla"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	*core
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
}

// TicketPatch carries the fields an update sets. Nil fields are left alone.
type TicketPatch struct {
	Title        *string
	Description  *string
	DepartmentID *string
	CategoryID   *string
	Priority     *string
	Status       *domain.TicketStatus
	AssigneeID   *string
}

func (p TicketPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.DepartmentID == nil && p.CategoryID == nil &&
		p.Priority == nil && p.Status == nil && p.AssigneeID == nil
}

func (p TicketPatch) textOnly() bool {
	return p.DepartmentID == nil && p.CategoryID == nil && p.Priority == nil && p.Status == nil && p.AssigneeID == nil
}

func (p TicketPatch) touchesTriage() bool {
	return p.DepartmentID != nil || p.CategoryID != nil || p.Priority != nil
}

// TicketListQuery describes listing filters and paging.
type TicketListQuery struct {
	Statuses        []domain.TicketStatus
	Priorities      []string
	DepartmentID    *string
	CategoryID      *string
	AssigneeID      *string
	RequesterID     *string
	Search          string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	IncludeArchived bool
	ViolatedOnly    bool
	Sort            string
	Page            int
	PageSize        int
}

// TicketPage is one page of a listing.
type TicketPage struct {
	Items    []domain.Ticket `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{core: newCore(deps)}
}

// CreateTicket opens a NEW ticket on behalf of actor.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description are required", nil)
	}

	now := s.now().UTC()
	ctx, cancel := s.bound(ctx)
	defer cancel()

	code, err := s.nextCode(ctx, now)
	if err != nil {
		return nil, persistenceError(err, "ticket", "")
	}
	ticket := &domain.Ticket{
		Code:        code,
		RequesterID: actor.ID,
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, persistenceError(err, "ticket", "")
	}
	_ = s.cache.InvalidatePrefixes(context.WithoutCancel(ctx), cache.ClassTickets.Prefix())

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			Code:        ticket.Code,
			Title:       ticket.Title,
			RequesterID: ticket.RequesterID,
		},
	})
	return ticket, nil
}

// nextCode derives the monthly sequence from a row count. Two creations in
// the same instant can read the same count and share a code.
func (s *TicketService) nextCode(ctx context.Context, now time.Time) (string, error) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	count, err := s.tickets.CountCreatedBetween(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d-%02d-%04d", s.codePrefix, now.Year(), int(now.Month()), count+1), nil
}

// ApplyUpdate applies patch to a ticket. A NEW ticket whose patch touches
// triage fields is triaged: it moves to OPEN and starts its SLA clock. When no
// policy covers the priority the update is still saved and the returned
// ticket comes with a POLICY_GAP error.
func (s *TicketService) ApplyUpdate(ctx context.Context, actor domain.Actor, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if patch.empty() {
		return nil, apperrors.NewValidationError("update carries no fields", nil)
	}
	before, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := canEdit(actor, before, patch); err != nil {
		return nil, err
	}
	if err := ensureMutable(before); err != nil {
		return nil, err
	}

	after := before.Clone()
	if err := s.applyFields(ctx, after, patch); err != nil {
		return nil, err
	}

	var gap error
	triage := before.Status == domain.TicketStatusNew &&
		(patch.touchesTriage() || (patch.Status != nil && *patch.Status == domain.TicketStatusOpen))
	if triage {
		if missing := missingTriageFields(after); len(missing) > 0 {
			return nil, apperrors.NewValidationError("triage requires department, category and priority",
				map[string]any{"missing": missing})
		}
		after.Status = domain.TicketStatusOpen
		if !before.HasSLA() {
			gap, err = s.startSLA(ctx, after)
			if err != nil {
				return nil, err
			}
		}
	}

	if patch.Status != nil && *patch.Status != after.Status {
		if err := checkTransition(actor, after.Status, *patch.Status); err != nil {
			return nil, err
		}
		after.Status = *patch.Status
	}
	if patch.AssigneeID != nil && !sameRef(before.AssigneeID, patch.AssigneeID) {
		if err := s.assignTo(ctx, actor, after, *patch.AssigneeID); err != nil {
			return nil, err
		}
	}

	if _, err := s.save(ctx, actor, before, after); err != nil {
		return nil, err
	}
	return after, gap
}

// startSLA stamps deadlines on a ticket entering triage. A policy gap leaves
// the ticket without deadlines and comes back as gap, not err.
func (s *TicketService) startSLA(ctx context.Context, ticket *domain.Ticket) (gap, err error) {
	deadlines, err := s.engine.Compute(ctx, *ticket.Priority, s.now())
	switch {
	case err == nil:
		deadlines.Apply(ticket)
		return nil, nil
	case errors.Is(err, sla.ErrPolicyGap):
		s.metrics.RecordPolicyGap()
		s.logger.Warn("no sla policy for priority, ticket left without deadlines",
			zap.String("ticket_id", ticket.ID),
			zap.String("priority", string(*ticket.Priority)))
		return apperrors.NewPolicyGap(string(*ticket.Priority), err), nil
	default:
		return nil, apperrors.NewDependencyError("sla policy", err)
	}
}

func (s *TicketService) applyFields(ctx context.Context, t *domain.Ticket, patch TicketPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return apperrors.NewValidationError("title must not be empty", nil)
		}
		t.Title = title
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if description == "" {
			return apperrors.NewValidationError("description must not be empty", nil)
		}
		t.Description = description
	}
	if patch.DepartmentID != nil && !sameRef(t.DepartmentID, patch.DepartmentID) {
		id := strings.TrimSpace(*patch.DepartmentID)
		if err := s.checkDepartment(ctx, id); err != nil {
			return err
		}
		t.DepartmentID = &id
	}
	if patch.CategoryID != nil && !sameRef(t.CategoryID, patch.CategoryID) {
		id := strings.TrimSpace(*patch.CategoryID)
		if err := s.checkCategory(ctx, id); err != nil {
			return err
		}
		t.CategoryID = &id
	}
	if patch.Priority != nil {
		priority, ok := s.scale.Parse(*patch.Priority)
		if !ok {
			return apperrors.NewValidationError("unknown priority", map[string]any{
				"priority": *patch.Priority,
				"allowed":  s.scale.Levels(),
			})
		}
		t.Priority = &priority
	}
	return nil
}

func (s *TicketService) checkDepartment(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.NewValidationError("department must not be empty", nil)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsCode(persistenceError(err, "department", id), apperrors.CodeNotFound) {
			return apperrors.NewValidationError("unknown department", map[string]any{"department_id": id})
		}
		return apperrors.NewDependencyError("postgres", err)
	}
	if !dept.IsActive {
		return apperrors.NewValidationError("department inactive", map[string]any{"department_id": id})
	}
	return nil
}

func (s *TicketService) checkCategory(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.NewValidationError("category must not be empty", nil)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsCode(persistenceError(err, "category", id), apperrors.CodeNotFound) {
			return apperrors.NewValidationError("unknown category", map[string]any{"category_id": id})
		}
		return apperrors.NewDependencyError("postgres", err)
	}
	if !category.IsActive {
		return apperrors.NewValidationError("category inactive", map[string]any{"category_id": id})
	}
	return nil
}

// ChangeStatus moves a ticket along the status table. Asking for the current
// status is a no-op.
func (s *TicketService) ChangeStatus(ctx context.Context, actor domain.Actor, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	before, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if before.Status == status {
		s.engine.Refresh(before)
		return before, nil
	}
	if err := checkTransition(actor, before.Status, status); err != nil {
		return nil, err
	}
	if before.Archived {
		return nil, apperrors.NewConflict("ticket is archived", map[string]any{"id": ticketID})
	}

	after := before.Clone()
	after.Status = status
	if _, err := s.save(ctx, actor, before, after); err != nil {
		return nil, err
	}
	return after, nil
}

// ArchiveTicket hides a ticket from default listings.
func (s *TicketService) ArchiveTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.setArchived(ctx, actor, ticketID, true)
}

// RestoreTicket reverses ArchiveTicket without touching status.
func (s *TicketService) RestoreTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.setArchived(ctx, actor, ticketID, false)
}

func (s *TicketService) setArchived(ctx context.Context, actor domain.Actor, ticketID string, archived bool) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.Role.Elevated() {
		return nil, apperrors.NewForbidden("archiving tickets requires an elevated role")
	}
	before, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if before.Archived == archived {
		s.engine.Refresh(before)
		return before, nil
	}
	after := before.Clone()
	after.Archived = archived
	if _, err := s.save(ctx, actor, before, after); err != nil {
		return nil, err
	}
	return after, nil
}

// GetTicket returns a ticket through the cache with a fresh violation flag.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := cache.GetOrCompute(ctx, s.cache, cache.TicketKey(ticketID), s.cacheCfg.TicketTTL(),
		func(ctx context.Context) (*domain.Ticket, error) {
			ctx, cancel := s.bound(ctx)
			defer cancel()
			return s.tickets.GetByID(ctx, ticketID)
		})
	if err != nil {
		return nil, persistenceError(err, "ticket", ticketID)
	}
	if !canView(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	ticket = ticket.Clone()
	s.engine.Refresh(ticket)
	return ticket, nil
}

// ListTickets returns one page of tickets matching query. Requesters only
// ever see their own tickets.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, query TicketListQuery) (*TicketPage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	filter, err := s.buildFilter(actor, &query)
	if err != nil {
		return nil, err
	}

	load := func(ctx context.Context) (*TicketPage, error) {
		ctx, cancel := s.bound(ctx)
		defer cancel()
		items, err := s.tickets.ListWithFilter(ctx, filter)
		if err != nil {
			return nil, err
		}
		total, err := s.tickets.Count(ctx, filter)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []domain.Ticket{}
		}
		return &TicketPage{Items: items, Total: total, Page: query.Page, PageSize: query.PageSize}, nil
	}

	var page *TicketPage
	if query.ViolatedOnly {
		// membership moves with the clock, so these pages are never cached
		now := s.now().UTC()
		filter.ViolatedAt = &now
		page, err = load(ctx)
	} else {
		page, err = cache.GetOrCompute(ctx, s.cache, listKey(filter, query), s.cacheCfg.ListTTL(), load)
	}
	if err != nil {
		return nil, persistenceError(err, "ticket", "")
	}
	out := *page
	out.Items = make([]domain.Ticket, len(page.Items))
	for i := range page.Items {
		out.Items[i] = *page.Items[i].Clone()
		s.engine.Refresh(&out.Items[i])
	}
	return &out, nil
}

func (s *TicketService) buildFilter(actor domain.Actor, query *TicketListQuery) (repository.TicketFilter, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	switch {
	case query.PageSize <= 0:
		query.PageSize = defaultPageSize
	case query.PageSize > maxPageSize:
		query.PageSize = maxPageSize
	}
	if query.Sort == "" {
		query.Sort = repository.SortCreatedDesc
	}
	if !repository.ValidSort(query.Sort) {
		return repository.TicketFilter{}, apperrors.NewValidationError("unknown sort", map[string]any{"sort": query.Sort})
	}
	for _, status := range query.Statuses {
		if !status.Valid() {
			return repository.TicketFilter{}, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
		}
	}
	priorities := make([]domain.Priority, 0, len(query.Priorities))
	for _, raw := range query.Priorities {
		priority, ok := s.scale.Parse(raw)
		if !ok {
			return repository.TicketFilter{}, apperrors.NewValidationError("unknown priority", map[string]any{"priority": raw})
		}
		priorities = append(priorities, priority)
	}

	filter := repository.TicketFilter{
		RequesterID:     query.RequesterID,
		DepartmentID:    query.DepartmentID,
		CategoryID:      query.CategoryID,
		AssigneeID:      query.AssigneeID,
		Statuses:        query.Statuses,
		Priorities:      priorities,
		CreatedFrom:     query.CreatedFrom,
		CreatedTo:       query.CreatedTo,
		IncludeArchived: query.IncludeArchived,
		Sort:            query.Sort,
		Limit:           query.PageSize,
		Offset:          (query.Page - 1) * query.PageSize,
	}
	if term := strings.TrimSpace(query.Search); term != "" {
		filter.SearchTerm = &term
	}
	if !actor.Role.AtLeast(domain.RoleAgent) {
		filter.RequesterID = ptr(actor.ID)
		filter.IncludeArchived = false
	}
	return filter, nil
}

// listKey encodes every parameter that shapes the result.
func listKey(filter repository.TicketFilter, query TicketListQuery) cache.Key {
	key := cache.NewKey(cache.ClassTickets).
		With("view", "list").
		With("page", strconv.Itoa(query.Page)).
		With("size", strconv.Itoa(query.PageSize)).
		With("sort", filter.Sort).
		With("archived", strconv.FormatBool(filter.IncludeArchived)).
		With("violated", strconv.FormatBool(query.ViolatedOnly))

	optional := map[string]*string{
		"requester":  filter.RequesterID,
		"department": filter.DepartmentID,
		"category":   filter.CategoryID,
		"assignee":   filter.AssigneeID,
		"q":          filter.SearchTerm,
	}
	for name, value := range optional {
		if value != nil {
			key = key.With(name, *value)
		}
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		key = key.With("status", joinSorted(statuses))
	}
	if len(filter.Priorities) > 0 {
		priorities := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			priorities[i] = string(p)
		}
		key = key.With("priority", joinSorted(priorities))
	}
	if filter.CreatedFrom != nil {
		key = key.With("from", filter.CreatedFrom.UTC().Format(time.RFC3339Nano))
	}
	if filter.CreatedTo != nil {
		key = key.With("to", filter.CreatedTo.UTC().Format(time.RFC3339Nano))
	}
	return key
}

func joinSorted(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// GetAuditTrail returns a ticket's audit entries, newest first.
func (s *TicketService) GetAuditTrail(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.AuditEntry, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	entries, err := cache.GetOrCompute(ctx, s.cache, cache.AuditKey(domain.EntityTicket, ticketID), s.cacheCfg.AuditTTL(),
		func(ctx context.Context) ([]domain.AuditEntry, error) {
			ctx, cancel := s.bound(ctx)
			defer cancel()
			return s.recorder.Trail(ctx, domain.EntityTicket, ticketID)
		})
	if err != nil {
		return nil, persistenceError(err, "audit trail", ticketID)
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return entries, nil
}

// save diffs before against after and, when anything changed, commits the
// new state and publishes what happened. It returns the recorded changes.
func (c *core) save(ctx context.Context, actor domain.Actor, before, after *domain.Ticket) ([]domain.FieldChange, error) {
	changes := audit.Diff(before, after)
	if len(changes) == 0 {
		c.engine.Refresh(after)
		return nil, nil
	}
	if !sameRef(before.AssigneeID, after.AssigneeID) {
		changes = audit.Relabel(changes, domain.FieldAssignee,
			c.userLabel(ctx, before.AssigneeID), c.userLabel(ctx, after.AssigneeID))
	}
	c.engine.Refresh(after)
	if err := c.commit(ctx, actor, after, changes); err != nil {
		return nil, err
	}
	c.recordTransition(before, after)
	c.publishChanges(ctx, actor, before, after, changes)
	return changes, nil
}

func (c *core) publishChanges(ctx context.Context, actor domain.Actor, before, after *domain.Ticket, changes []domain.FieldChange) {
	base := events.Event{TicketID: after.ID, Actor: actor}

	updated := base
	updated.Type = events.EventTicketUpdated
	updated.Payload = events.TicketUpdatedPayload{Code: after.Code, Fields: audit.Fields(changes)}
	c.publish(ctx, updated)

	if !sameRef(before.DepartmentID, after.DepartmentID) && after.DepartmentID != nil {
		e := base
		e.Type = events.EventTicketDepartmentReassigned
		e.Payload = events.DepartmentReassignedPayload{
			Code:            after.Code,
			Title:           after.Title,
			OldDepartmentID: deref(before.DepartmentID),
			NewDepartmentID: *after.DepartmentID,
		}
		c.publish(ctx, e)
	}
	if !sameRef(before.AssigneeID, after.AssigneeID) && after.AssigneeID != nil {
		e := base
		e.Type = events.EventTicketAssigned
		e.Payload = events.TicketAssignedPayload{
			Code:          after.Code,
			Title:         after.Title,
			OldAssigneeID: deref(before.AssigneeID),
			NewAssigneeID: *after.AssigneeID,
		}
		c.publish(ctx, e)
	}
	if before.Status != after.Status {
		e := base
		e.Type = events.EventTicketStatusChanged
		e.Payload = events.TicketStatusChangedPayload{
			Code:        after.Code,
			RequesterID: after.RequesterID,
			OldStatus:   before.Status,
			NewStatus:   after.Status,
		}
		c.publish(ctx, e)
	}
	if before.Archived != after.Archived {
		e := base
		e.Type = events.EventTicketArchived
		if !after.Archived {
			e.Type = events.EventTicketRestored
		}
		c.publish(ctx, e)
	}
}

func canView(actor domain.Actor, ticket *domain.Ticket) bool {
	return actor.Role.AtLeast(domain.RoleAgent) || ticket.RequesterID == actor.ID
}

// canEdit lets agents edit any ticket and a requester edit the text of their
// own ticket until it is triaged.
func canEdit(actor domain.Actor, ticket *domain.Ticket, patch TicketPatch) error {
	if actor.Role.AtLeast(domain.RoleAgent) {
		return nil
	}
	if actor.ID == ticket.RequesterID && ticket.Status == domain.TicketStatusNew && patch.textOnly() {
		return nil
	}
	return apperrors.NewForbidden("insufficient role for this update")
}

func ensureMutable(ticket *domain.Ticket) error {
	if ticket.Archived {
		return apperrors.NewConflict("ticket is archived", map[string]any{"id": ticket.ID})
	}
	if ticket.Status.IsTerminal() {
		return apperrors.NewConflict("ticket is closed", map[string]any{"id": ticket.ID, "status": ticket.Status})
	}
	return nil
}

func missingTriageFields(t *domain.Ticket) []string {
	var missing []string
	if t.DepartmentID == nil {
		missing = append(missing, domain.FieldDepartment)
	}
	if t.CategoryID == nil {
		missing = append(missing, domain.FieldCategory)
	}
	if t.Priority == nil {
		missing = append(missing, domain.FieldPriority)
	}
	return missing
}

func sameRef(a, b *string) bool {
	return deref(a) == deref(b)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-sla-engine/internal/audit"
	"github.com/spec-kit/ticket-sla-engine/internal/cache"
	"github.com/spec-kit/ticket-sla-engine/internal/config"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/events"
	"github.com/spec-kit/ticket-sla-engine/internal/repository"
	"github.com/spec-kit/ticket-sla-engine/internal/sla"
)

type fakeTicketRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.Ticket
	seq     int
	now     func() time.Time
	updates int
	gets    int

	// beforeUpdate runs inside Update before the version check.
	beforeUpdate func(r *fakeTicketRepo, id string)
	deleteErr    map[string]error
}

func newFakeTicketRepo(now func() time.Time) *fakeTicketRepo {
	return &fakeTicketRepo{rows: map[string]*domain.Ticket{}, now: now}
}

func (r *fakeTicketRepo) Create(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.ID = fmt.Sprintf("t-%d", r.seq)
	t.Version = 1
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	t.UpdatedAt = t.CreatedAt
	r.rows[t.ID] = t.Clone()
	return nil
}

// put stores t as-is, for seeding.
func (r *fakeTicketRepo) put(t *domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Version == 0 {
		t.Version = 1
	}
	r.rows[t.ID] = t.Clone()
}

func (r *fakeTicketRepo) stored(id string) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].Clone()
}

func (r *fakeTicketRepo) Update(_ context.Context, t *domain.Ticket) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate(r, t.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if current.Version != t.Version {
		return repository.ErrVersionConflict
	}
	r.updates++
	t.Version++
	t.UpdatedAt = r.now()
	r.rows[t.ID] = t.Clone()
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	t, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t.Clone(), nil
}

func (r *fakeTicketRepo) matching(filter repository.TicketFilter) []domain.Ticket {
	var out []domain.Ticket
	for _, t := range r.rows {
		if !filter.IncludeArchived && t.Archived {
			continue
		}
		if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.DepartmentID != nil && deref(t.DepartmentID) != *filter.DepartmentID {
			continue
		}
		if filter.AssigneeID != nil && deref(t.AssigneeID) != *filter.AssigneeID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.SearchTerm != nil && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(*filter.SearchTerm)) {
			continue
		}
		if filter.ViolatedAt != nil && !sla.IsViolated(t, *filter.ViolatedAt) {
			continue
		}
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.matching(filter)
	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (r *fakeTicketRepo) Count(_ context.Context, filter repository.TicketFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matching(filter)), nil
}

func (r *fakeTicketRepo) CountCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.rows {
		if !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *fakeTicketRepo) ListArchivedBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.rows {
		if t.Archived && t.UpdatedAt.Before(cutoff) {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTicketRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := r.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.rows, id)
	return nil
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	seq     int
	err     error
	deleted []string
}

func (r *fakeAuditRepo) CreateBatch(_ context.Context, entries []*domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, e := range entries {
		r.seq++
		e.ID = fmt.Sprintf("a-%03d", r.seq)
		r.entries = append(r.entries, *e)
	}
	return nil
}

func (r *fakeAuditRepo) ListByEntity(_ context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) DeleteByEntity(_ context.Context, entityType, entityID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, "audit:"+entityID)
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

// forField returns entries recorded for one ticket field.
func (r *fakeAuditRepo) forField(ticketID, field string) []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.EntityID == ticketID && e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

func (r *fakeAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type fakeDepartmentRepo map[string]domain.Department

func (r fakeDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	d, ok := r[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

type fakeCategoryRepo map[string]domain.Category

func (r fakeCategoryRepo) GetByID(_ context.Context, id string) (*domain.Category, error) {
	c, ok := r[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

type fakeUserRepo struct {
	users map[string]domain.User
	err   error
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *fakeUserRepo) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.User
	for _, u := range r.users {
		if filter.DepartmentID != nil && deref(u.DepartmentID) != *filter.DepartmentID {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// snapshotTx restores the ticket rows when fn fails, standing in for a
// database rollback.
type snapshotTx struct {
	repo  *fakeTicketRepo
	calls int
}

func (tx *snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.calls++
	tx.repo.mu.Lock()
	saved := make(map[string]*domain.Ticket, len(tx.repo.rows))
	for id, t := range tx.repo.rows {
		saved[id] = t.Clone()
	}
	tx.repo.mu.Unlock()

	if err := fn(ctx); err != nil {
		tx.repo.mu.Lock()
		tx.repo.rows = saved
		tx.repo.mu.Unlock()
		return err
	}
	return nil
}

var testPolicies = sla.StaticPolicies{
	"CRITICAL": {ID: "pol-critical", ResponseMinutes: 30, ResolutionMinutes: 240},
	"MAJOR":    {ID: "pol-major", ResponseMinutes: 60, ResolutionMinutes: 480},
	"MINOR":    {ID: "pol-minor", ResponseMinutes: 240, ResolutionMinutes: 2880},
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) of(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	now        time.Time
	tickets    *fakeTicketRepo
	audits     *fakeAuditRepo
	users      *fakeUserRepo
	store      *cache.MemoryStore
	layer      *cache.Layer
	tx         *snapshotTx
	published  *recordedEvents
	svc        *TicketService
	assignment *AssignmentService
}

var (
	requester = domain.Actor{ID: "u-req", Role: domain.RoleRequester}
	agent     = domain.Actor{ID: "u-agent", Role: domain.RoleAgent}
	lead      = domain.Actor{ID: "u-lead", Role: domain.RoleTeamLead}
)

func newTestEnv(t *testing.T, auditMode string) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2024, 5, 14, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	env.tickets = newFakeTicketRepo(clock)
	env.audits = &fakeAuditRepo{}
	env.users = &fakeUserRepo{users: map[string]domain.User{
		"u-req":      {ID: "u-req", Name: "Su Su", Email: "susu@example.com", Role: domain.RoleRequester, Active: true},
		"u-agent":    {ID: "u-agent", Name: "Aung Aung", Email: "aung@example.com", Role: domain.RoleAgent, Active: true, DepartmentID: ptr("d-it")},
		"u-agent2":   {ID: "u-agent2", Name: "Hla Hla", Phone: "+95 9 555", Role: domain.RoleAgent, Active: true, DepartmentID: ptr("d-it")},
		"u-inactive": {ID: "u-inactive", Name: "Gone", Email: "gone@example.com", Role: domain.RoleAgent, Active: false, DepartmentID: ptr("d-it")},
		"u-lead":     {ID: "u-lead", Name: "Lead", Email: "lead@example.com", Role: domain.RoleTeamLead, Active: true},
	}}
	env.store = cache.NewMemoryStore()
	env.layer = cache.NewLayer(env.store, nil, nil, 0)
	env.tx = &snapshotTx{repo: env.tickets}
	env.published = &recordedEvents{}

	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range []events.EventType{
		events.EventTicketCreated, events.EventTicketUpdated, events.EventTicketDepartmentReassigned,
		events.EventTicketAssigned, events.EventTicketStatusChanged, events.EventTicketArchived, events.EventTicketRestored,
	} {
		dispatcher.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			env.published.mu.Lock()
			env.published.events = append(env.published.events, e)
			env.published.mu.Unlock()
			return nil
		})
	}

	deps := TicketDependencies{
		TicketRepo: env.tickets,
		DepartmentRepo: fakeDepartmentRepo{
			"d-it":  {ID: "d-it", Name: "IT", IsActive: true},
			"d-hr":  {ID: "d-hr", Name: "HR", IsActive: true},
			"d-old": {ID: "d-old", Name: "Legacy", IsActive: false},
		},
		CategoryRepo: fakeCategoryRepo{
			"c-hw": {ID: "c-hw", Name: "Hardware", IsActive: true},
			"c-sw": {ID: "c-sw", Name: "Software", IsActive: true},
		},
		UserRepo:   env.users,
		Recorder:   audit.NewRecorder(env.audits, nil, nil, clock),
		Engine:     sla.NewEngine(testPolicies, clock),
		Cache:      env.layer,
		Transactor: env.tx,
		Dispatcher: dispatcher,
		CacheConfig: config.CacheConfig{
			TicketTTLSeconds: 60,
			ListTTLSeconds:   30,
			AuditTTLSeconds:  120,
		},
		TicketConfig: config.TicketConfig{
			PriorityVocabulary: "severity",
			AuditMode:          auditMode,
			CodePrefix:         "REQ",
		},
		Now: clock,
	}
	env.svc = NewTicketService(deps)
	env.assignment = NewAssignmentService(deps)
	return env
}

// seed stores a ticket in the given state and returns its id.
func (e *testEnv) seed(t *domain.Ticket) string {
	if t.ID == "" {
		e.tickets.seq++
		t.ID = fmt.Sprintf("seed-%d", e.tickets.seq)
	}
	if t.RequesterID == "" {
		t.RequesterID = requester.ID
	}
	if t.Title == "" {
		t.Title = "Laptop will not boot"
	}
	if t.Description == "" {
		t.Description = "Black screen after update"
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = e.now
		t.UpdatedAt = e.now
	}
	e.tickets.put(t)
	return t.ID
}

func (e *testEnv) triaged(status domain.TicketStatus) string {
	p := domain.Priority("MAJOR")
	return e.seed(&domain.Ticket{
		Status:       status,
		DepartmentID: ptr("d-it"),
		CategoryID:   ptr("c-hw"),
		Priority:     &p,
	})
}

var errBoom = errors.New("boom")

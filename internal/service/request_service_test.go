package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/sequence"
	"github.com/spec-kit/service-desk/pkg/util"
)

type fakeRequestRepo struct {
	byID        map[string]*domain.Request
	nextID      int
	failCreates int
	lastFilter  repository.RequestFilter
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{byID: make(map[string]*domain.Request)}
}

func (f *fakeRequestRepo) Create(_ context.Context, req *domain.Request) error {
	if f.failCreates > 0 {
		f.failCreates--
		return &pgconn.PgError{Code: "23505"}
	}
	for _, existing := range f.byID {
		if existing.TicketNumber == req.TicketNumber {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	f.nextID++
	req.ID = fmt.Sprintf("req-%d", f.nextID)
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	clone := *req
	f.byID[req.ID] = &clone
	return nil
}

func (f *fakeRequestRepo) Update(_ context.Context, req *domain.Request) error {
	if _, ok := f.byID[req.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *req
	f.byID[req.ID] = &clone
	return nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, id string) (*domain.Request, error) {
	req, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *req
	return &clone, nil
}

func (f *fakeRequestRepo) GetByTicketNumber(_ context.Context, number string) (*domain.Request, error) {
	for _, req := range f.byID {
		if req.TicketNumber == number {
			clone := *req
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeRequestRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeRequestRepo) ListWithFilter(_ context.Context, filter repository.RequestFilter) ([]domain.Request, error) {
	f.lastFilter = filter
	var result []domain.Request
	for _, req := range f.byID {
		if filter.Kind != nil && req.Kind != *filter.Kind {
			continue
		}
		if filter.RequesterID != nil && req.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.OrganizationID != nil && req.OrganizationID != *filter.OrganizationID {
			continue
		}
		result = append(result, *req)
	}
	return result, nil
}

func (f *fakeRequestRepo) Stats(_ context.Context, kind domain.RequestKind, organizationID *string, _ int) (*repository.RequestStats, error) {
	stats := &repository.RequestStats{
		ByStatus:   make(map[domain.RequestStatus]int64),
		ByPriority: make(map[domain.RequestPriority]int64),
	}
	for _, req := range f.byID {
		if req.Kind != kind {
			continue
		}
		if organizationID != nil && req.OrganizationID != *organizationID {
			continue
		}
		stats.ByStatus[req.Status]++
		stats.ByPriority[req.Priority]++
	}
	return stats, nil
}

type fakeOrgRepo struct {
	byID map[string]*domain.Organization
}

func newFakeOrgRepo(orgs ...*domain.Organization) *fakeOrgRepo {
	f := &fakeOrgRepo{byID: make(map[string]*domain.Organization)}
	for _, org := range orgs {
		f.byID[org.ID] = org
	}
	return f
}

func (f *fakeOrgRepo) Create(_ context.Context, org *domain.Organization) error {
	if org.ID == "" {
		org.ID = fmt.Sprintf("org-%d", len(f.byID)+1)
	}
	f.byID[org.ID] = org
	return nil
}

func (f *fakeOrgRepo) Update(_ context.Context, org *domain.Organization) error {
	if _, ok := f.byID[org.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.byID[org.ID] = org
	return nil
}

func (f *fakeOrgRepo) GetByID(_ context.Context, id string) (*domain.Organization, error) {
	org, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return org, nil
}

func (f *fakeOrgRepo) GetByCode(_ context.Context, code string) (*domain.Organization, error) {
	for _, org := range f.byID {
		if org.Code == code {
			return org, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeOrgRepo) List(_ context.Context) ([]domain.Organization, error) {
	var result []domain.Organization
	for _, org := range f.byID {
		result = append(result, *org)
	}
	return result, nil
}

type capturingDispatcher struct {
	published []events.Event
}

func (d *capturingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *capturingDispatcher) byType(t events.EventType) []events.Event {
	var result []events.Event
	for _, ev := range d.published {
		if ev.Type == t {
			result = append(result, ev)
		}
	}
	return result
}

var testCreatedAt = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func orgPtr(id string) *string { return &id }

func requestActor(role domain.UserRole, orgID *string) *domain.User {
	return &domain.User{
		ID:             "actor-" + string(role),
		Role:           role,
		OrganizationID: orgID,
		Active:         true,
	}
}

func newTestRequestService(repo *fakeRequestRepo, dispatcher events.Dispatcher) *RequestService {
	orgs := newFakeOrgRepo(&domain.Organization{ID: "org-1", Name: "Acme", Code: "ACME", Active: true})
	allocator := sequence.NewAllocator(sequence.NewMemoryCounter()).
		WithClock(func() time.Time { return testCreatedAt })
	return NewRequestService(RequestDependencies{
		RequestRepo:      repo,
		OrganizationRepo: orgs,
		Allocator:        allocator,
		Dispatcher:       dispatcher,
	}).WithClock(func() time.Time { return testCreatedAt })
}

func TestCreateAssignsNumberAndSLA(t *testing.T) {
	repo := newFakeRequestRepo()
	dispatcher := &capturingDispatcher{}
	svc := newTestRequestService(repo, dispatcher)
	actor := requestActor(domain.RoleUser, orgPtr("org-1"))

	moveType := domain.MACMove
	req, err := svc.Create(context.Background(), actor, RequestCreateInput{
		Kind:        domain.KindMAC,
		Title:       "Move desk phone",
		Description: "Office 2 to office 5",
		RequestType: &moveType,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.TicketNumber != "MAC-2506-00001" {
		t.Errorf("TicketNumber = %q, want MAC-2506-00001", req.TicketNumber)
	}
	if req.Status != domain.StatusPending {
		t.Errorf("Status = %q", req.Status)
	}
	if req.Priority != domain.PriorityMedium {
		t.Errorf("default Priority = %q", req.Priority)
	}
	want := testCreatedAt.Add(48 * time.Hour)
	if req.EstimatedCompletion == nil || !req.EstimatedCompletion.Equal(want) {
		t.Errorf("EstimatedCompletion = %v, want %v", req.EstimatedCompletion, want)
	}
	if len(dispatcher.byType(events.EventRequestCreated)) != 1 {
		t.Error("created event not published")
	}
}

func TestCreateSLAOffsets(t *testing.T) {
	tests := []struct {
		priority string
		offset   time.Duration
	}{
		{"low", 120 * time.Hour},
		{"medium", 48 * time.Hour},
		{"high", 24 * time.Hour},
		{"critical", 12 * time.Hour},
		{"urgent", 12 * time.Hour},
	}
	for _, tc := range tests {
		svc := newTestRequestService(newFakeRequestRepo(), &capturingDispatcher{})
		actor := requestActor(domain.RoleUser, orgPtr("org-1"))

		req, err := svc.Create(context.Background(), actor, RequestCreateInput{
			Kind:        domain.KindSupport,
			Title:       "Printer broken",
			Description: "Paper jam light stays on",
			Priority:    tc.priority,
		})
		if err != nil {
			t.Fatalf("Create(%s): %v", tc.priority, err)
		}
		want := testCreatedAt.Add(tc.offset)
		if !req.EstimatedCompletion.Equal(want) {
			t.Errorf("priority %s: estimate = %v, want %v", tc.priority, req.EstimatedCompletion, want)
		}
	}
}

func TestCreateRejectsUnknownPriority(t *testing.T) {
	svc := newTestRequestService(newFakeRequestRepo(), &capturingDispatcher{})
	actor := requestActor(domain.RoleUser, orgPtr("org-1"))

	_, err := svc.Create(context.Background(), actor, RequestCreateInput{
		Kind:        domain.KindSupport,
		Title:       "t",
		Description: "d",
		Priority:    "blazing",
	})
	assertDomainCode(t, err, "VALIDATION_FAILED")
}

func TestCreateRequiresOrganization(t *testing.T) {
	svc := newTestRequestService(newFakeRequestRepo(), &capturingDispatcher{})
	actor := requestActor(domain.RoleUser, nil)

	_, err := svc.Create(context.Background(), actor, RequestCreateInput{
		Kind:        domain.KindSupport,
		Title:       "t",
		Description: "d",
	})
	assertDomainCode(t, err, "VALIDATION_FAILED")
}

func TestCreateMACRequiresRequestType(t *testing.T) {
	svc := newTestRequestService(newFakeRequestRepo(), &capturingDispatcher{})
	actor := requestActor(domain.RoleUser, orgPtr("org-1"))

	_, err := svc.Create(context.Background(), actor, RequestCreateInput{
		Kind:        domain.KindMAC,
		Title:       "t",
		Description: "d",
	})
	assertDomainCode(t, err, "VALIDATION_FAILED")
}

func TestCreateAdminOrganizationOverride(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	admin := requestActor(domain.RoleAdmin, orgPtr("org-ignored"))

	req, err := svc.Create(context.Background(), admin, RequestCreateInput{
		Kind:           domain.KindSupport,
		Title:          "t",
		Description:    "d",
		OrganizationID: orgPtr("org-1"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.OrganizationID != "org-1" {
		t.Errorf("OrganizationID = %q, want override org-1", req.OrganizationID)
	}
}

func TestCreateNonAdminCannotOverrideOrganization(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	actor := requestActor(domain.RoleUser, orgPtr("org-1"))

	req, err := svc.Create(context.Background(), actor, RequestCreateInput{
		Kind:           domain.KindSupport,
		Title:          "t",
		Description:    "d",
		OrganizationID: orgPtr("org-other"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.OrganizationID != "org-1" {
		t.Errorf("OrganizationID = %q, want the actor's own org", req.OrganizationID)
	}
}

func TestCreateRetriesOnNumberConflict(t *testing.T) {
	repo := newFakeRequestRepo()
	repo.failCreates = 1
	svc := newTestRequestService(repo, &capturingDispatcher{})
	actor := requestActor(domain.RoleUser, orgPtr("org-1"))

	req, err := svc.Create(context.Background(), actor, RequestCreateInput{
		Kind:        domain.KindSupport,
		Title:       "t",
		Description: "d",
	})
	if err != nil {
		t.Fatalf("Create after one conflict: %v", err)
	}
	// First allocation burned by the conflict; retry took the next value.
	if req.TicketNumber != "TKT-2506-00002" {
		t.Errorf("TicketNumber = %q, want TKT-2506-00002", req.TicketNumber)
	}
}

func seedRequest(t *testing.T, svc *RequestService, repo *fakeRequestRepo, requester *domain.User) *domain.Request {
	t.Helper()
	req, err := svc.Create(context.Background(), requester, RequestCreateInput{
		Kind:        domain.KindSupport,
		Title:       "Printer broken",
		Description: "It beeps",
	})
	if err != nil {
		t.Fatalf("seed Create: %v", err)
	}
	return req
}

func TestUpdateOwnerFieldDiff(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	req := seedRequest(t, svc, repo, owner)

	newTitle := "hijacked"
	newDesc := "it beeps twice now"
	updated, diff, err := svc.Update(context.Background(), owner, req.ID, RequestUpdateInput{
		Title:       &newTitle,
		Description: &newDesc,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Description != newDesc {
		t.Errorf("Description not applied: %q", updated.Description)
	}
	if updated.Title == newTitle {
		t.Error("owner changed title, which is staff-only")
	}
	if !contains(diff.Applied, "description") || !contains(diff.Rejected, "title") {
		t.Errorf("diff = %+v", diff)
	}
}

func TestUpdateNonOwnerForbidden(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	req := seedRequest(t, svc, repo, owner)

	stranger := &domain.User{ID: "stranger", Role: domain.RoleUser, OrganizationID: orgPtr("org-1")}
	note := "peek"
	_, _, err := svc.Update(context.Background(), stranger, req.ID, RequestUpdateInput{Notes: &note})
	assertDomainCode(t, err, "FORBIDDEN")
}

func TestUpdateStatusTransitions(t *testing.T) {
	repo := newFakeRequestRepo()
	dispatcher := &capturingDispatcher{}
	svc := newTestRequestService(repo, dispatcher)
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	agent := requestActor(domain.RoleSupport, nil)
	req := seedRequest(t, svc, repo, owner)

	// pending -> completed skips in_progress and is rejected.
	status := string(domain.StatusCompleted)
	_, _, err := svc.Update(context.Background(), agent, req.ID, RequestUpdateInput{Status: &status})
	assertDomainCode(t, err, "CONFLICT")

	status = string(domain.StatusInProgress)
	if _, _, err := svc.Update(context.Background(), agent, req.ID, RequestUpdateInput{Status: &status}); err != nil {
		t.Fatalf("pending->in_progress: %v", err)
	}

	status = string(domain.StatusCompleted)
	updated, _, err := svc.Update(context.Background(), agent, req.ID, RequestUpdateInput{Status: &status})
	if err != nil {
		t.Fatalf("in_progress->completed: %v", err)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(testCreatedAt) {
		t.Errorf("CompletedAt = %v", updated.CompletedAt)
	}
	if updated.ActualCompletion == nil {
		t.Error("ActualCompletion not stamped")
	}

	if got := len(dispatcher.byType(events.EventRequestStatusChanged)); got != 2 {
		t.Errorf("status-changed events = %d, want 2", got)
	}
}

func TestUpdateCancelRequiresReason(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	agent := requestActor(domain.RoleSupport, nil)
	req := seedRequest(t, svc, repo, owner)

	status := string(domain.StatusCancelled)
	_, _, err := svc.Update(context.Background(), agent, req.ID, RequestUpdateInput{Status: &status})
	assertDomainCode(t, err, "VALIDATION_FAILED")

	reason := "duplicate of TKT-2506-00001"
	updated, _, err := svc.Update(context.Background(), agent, req.ID, RequestUpdateInput{
		Status:             &status,
		CancellationReason: &reason,
	})
	if err != nil {
		t.Fatalf("cancel with reason: %v", err)
	}
	if updated.CancelledAt == nil || updated.CancellationReason == nil || *updated.CancellationReason != reason {
		t.Errorf("cancellation not stamped: %+v", updated)
	}
}

func TestUpdateTerminalStateLocked(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	agent := requestActor(domain.RoleSupport, nil)
	req := seedRequest(t, svc, repo, owner)

	reason := "not needed"
	status := string(domain.StatusCancelled)
	if _, _, err := svc.Update(context.Background(), agent, req.ID, RequestUpdateInput{Status: &status, CancellationReason: &reason}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	status = string(domain.StatusInProgress)
	_, _, err := svc.Update(context.Background(), agent, req.ID, RequestUpdateInput{Status: &status})
	assertDomainCode(t, err, "CONFLICT")
}

func TestUpdateStatusByOwnerRejected(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	req := seedRequest(t, svc, repo, owner)

	status := string(domain.StatusInProgress)
	updated, diff, err := svc.Update(context.Background(), owner, req.ID, RequestUpdateInput{Status: &status})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != domain.StatusPending {
		t.Errorf("owner moved status to %q", updated.Status)
	}
	if !contains(diff.Rejected, "status") {
		t.Errorf("diff = %+v", diff)
	}
}

func TestAssignmentEventPublished(t *testing.T) {
	repo := newFakeRequestRepo()
	dispatcher := &capturingDispatcher{}
	svc := newTestRequestService(repo, dispatcher)
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	agent := requestActor(domain.RoleSupport, nil)
	req := seedRequest(t, svc, repo, owner)

	assignee := "agent-9"
	if _, _, err := svc.Update(context.Background(), agent, req.ID, RequestUpdateInput{AssigneeID: &assignee}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	assigned := dispatcher.byType(events.EventRequestAssigned)
	if len(assigned) != 1 {
		t.Fatalf("assigned events = %d", len(assigned))
	}
	payload := assigned[0].Payload.(events.RequestAssignedPayload)
	if payload.AssigneeID == nil || *payload.AssigneeID != assignee {
		t.Errorf("payload = %+v", payload)
	}
	if payload.RequesterID != owner.ID {
		t.Errorf("RequesterID = %q", payload.RequesterID)
	}
}

func TestListScopesToRequesterForUsers(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	seedRequest(t, svc, repo, owner)

	if _, err := svc.List(context.Background(), owner, domain.KindSupport, RequestListInput{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if repo.lastFilter.RequesterID == nil || *repo.lastFilter.RequesterID != owner.ID {
		t.Errorf("filter = %+v, want requester scope", repo.lastFilter)
	}

	admin := requestActor(domain.RoleAdmin, nil)
	if _, err := svc.List(context.Background(), admin, domain.KindSupport, RequestListInput{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if repo.lastFilter.RequesterID != nil || repo.lastFilter.OrganizationID != nil {
		t.Errorf("admin filter = %+v, want unscoped", repo.lastFilter)
	}
}

func TestStatsElevatedOnly(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})

	_, err := svc.Stats(context.Background(), requestActor(domain.RoleUser, orgPtr("org-1")), domain.KindSupport, 5)
	assertDomainCode(t, err, "FORBIDDEN")

	if _, err := svc.Stats(context.Background(), requestActor(domain.RoleSupport, nil), domain.KindSupport, 5); err != nil {
		t.Fatalf("Stats: %v", err)
	}
}

func TestDeleteAdminOnly(t *testing.T) {
	repo := newFakeRequestRepo()
	dispatcher := &capturingDispatcher{}
	svc := newTestRequestService(repo, dispatcher)
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	req := seedRequest(t, svc, repo, owner)

	err := svc.Delete(context.Background(), requestActor(domain.RoleSupport, nil), req.ID)
	assertDomainCode(t, err, "FORBIDDEN")

	if err := svc.Delete(context.Background(), requestActor(domain.RoleAdmin, nil), req.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(dispatcher.byType(events.EventRequestDeleted)) != 1 {
		t.Error("deleted event not published")
	}
}

func TestGetVisibility(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := newTestRequestService(repo, &capturingDispatcher{})
	owner := requestActor(domain.RoleUser, orgPtr("org-1"))
	req := seedRequest(t, svc, repo, owner)

	stranger := &domain.User{ID: "stranger", Role: domain.RoleUser}
	_, err := svc.Get(context.Background(), stranger, req.ID)
	assertDomainCode(t, err, "FORBIDDEN")

	if _, err := svc.Get(context.Background(), requestActor(domain.RoleSupport, nil), req.ID); err != nil {
		t.Fatalf("support Get: %v", err)
	}
	if _, err := svc.GetByTicketNumber(context.Background(), owner, req.TicketNumber); err != nil {
		t.Fatalf("GetByTicketNumber: %v", err)
	}
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	de := util.ToDomainError(err)
	if de.Code != code {
		t.Fatalf("error code = %s (%v), want %s", de.Code, err, code)
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

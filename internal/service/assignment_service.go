package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/pkg/util"
)

// AssignmentService handles request assignment operations.
type AssignmentService struct {
	requests   repository.RequestRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	RequestRepo repository.RequestRepository
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		requests:   deps.RequestRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
	}
}

// SelfAssign lets a support agent or admin take a request.
func (s *AssignmentService) SelfAssign(ctx context.Context, actor *domain.User, requestID string) (*domain.Request, error) {
	if actor == nil || !actor.Role.Elevated() {
		return nil, util.NewForbidden("insufficient role for self assign")
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, util.MapError(err)
	}
	return s.assign(ctx, actor.ID, req, &actor.ID)
}

// Assign sets the assignee explicitly. The assignee must be an active
// elevated account.
func (s *AssignmentService) Assign(ctx context.Context, actor *domain.User, requestID, assigneeID string) (*domain.Request, error) {
	if actor == nil || !actor.Role.Elevated() {
		return nil, util.NewForbidden("insufficient role for assignment")
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if !assignee.Active {
		return nil, util.NewConflict("assignee inactive", map[string]any{"user_id": assigneeID})
	}
	if !assignee.Role.Elevated() {
		return nil, util.NewValidationError("assignee must be a support or admin account", nil)
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, util.MapError(err)
	}
	return s.assign(ctx, actor.ID, req, &assignee.ID)
}

// AutoAssign picks an agent for an unassigned request. Selection is
// deterministic over the active support pool so repeated calls for the same
// request land on the same agent.
func (s *AssignmentService) AutoAssign(ctx context.Context, actor *domain.User, requestID string) (*domain.Request, error) {
	if actor == nil || !actor.Role.Elevated() {
		return nil, util.NewForbidden("insufficient role for assignment")
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if req.AssigneeID != nil {
		return nil, util.NewConflict("request already assigned", nil)
	}

	pool, err := s.eligibleAgents(ctx)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, util.NewConflict("no eligible agents available", nil)
	}

	assignee := pool[selectIndex(req.ID, len(pool))]
	return s.assign(ctx, actor.ID, req, &assignee.ID)
}

func (s *AssignmentService) assign(ctx context.Context, actorID string, req *domain.Request, assigneeID *string) (*domain.Request, error) {
	if req.Status.Terminal() {
		return nil, util.NewConflict("cannot assign a closed request", nil)
	}
	req.AssigneeID = assigneeID
	if err := s.requests.Update(ctx, req); err != nil {
		return nil, util.MapError(err)
	}
	s.publishAssignmentEvent(ctx, actorID, req)
	return req, nil
}

func (s *AssignmentService) eligibleAgents(ctx context.Context) ([]domain.User, error) {
	accounts, err := s.users.List(ctx, 1000, 0)
	if err != nil {
		return nil, util.MapError(err)
	}
	pool := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		if account.Active && account.Role == domain.RoleSupport {
			pool = append(pool, account)
		}
	}
	sort.Slice(pool, func(i, j int) bool {
		return pool[i].CreatedAt.Before(pool[j].CreatedAt)
	})
	return pool, nil
}

func selectIndex(key string, length int) int {
	if length == 0 {
		return 0
	}
	sum := 0
	for _, ch := range key {
		sum += int(ch)
	}
	return sum % length
}

func (s *AssignmentService) publishAssignmentEvent(ctx context.Context, actorID string, req *domain.Request) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:           uuid.NewString(),
		Type:         events.EventRequestAssigned,
		RequestID:    req.ID,
		TicketNumber: req.TicketNumber,
		ActorID:      actorID,
		Timestamp:    time.Now(),
		Payload: events.RequestAssignedPayload{
			RequesterID: req.RequesterID,
			AssigneeID:  req.AssigneeID,
		},
	}
	_ = s.dispatcher.Publish(ctx, event)
}

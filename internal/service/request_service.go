package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/sequence"
	"github.com/spec-kit/service-desk/pkg/util"
)

// slaOffsets maps priority to the estimated-completion window stamped at
// creation time.
var slaOffsets = map[domain.RequestPriority]time.Duration{
	domain.PriorityLow:      120 * time.Hour,
	domain.PriorityMedium:   48 * time.Hour,
	domain.PriorityHigh:     24 * time.Hour,
	domain.PriorityCritical: 12 * time.Hour,
}

// allocateAttempts bounds the re-allocation loop when an insert collides on
// the ticket-number unique index.
const allocateAttempts = 3

// RequestService coordinates the lifecycle of MAC requests and support
// tickets: numbering, SLA stamping, authorization-gated mutation, and
// status transitions.
type RequestService struct {
	requests      repository.RequestRepository
	organizations repository.OrganizationRepository
	users         repository.UserRepository
	allocator     *sequence.Allocator
	dispatcher    events.Dispatcher
	now           func() time.Time
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo      repository.RequestRepository
	OrganizationRepo repository.OrganizationRepository
	UserRepo         repository.UserRepository
	Allocator        *sequence.Allocator
	Dispatcher       events.Dispatcher
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	return &RequestService{
		requests:      deps.RequestRepo,
		organizations: deps.OrganizationRepo,
		users:         deps.UserRepo,
		allocator:     deps.Allocator,
		dispatcher:    deps.Dispatcher,
		now:           time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *RequestService) WithClock(now func() time.Time) *RequestService {
	s.now = now
	return s
}

// RequestCreateInput describes the creation payload for either kind.
type RequestCreateInput struct {
	Kind           domain.RequestKind
	OrganizationID *string
	Title          string
	Description    string
	Priority       string

	// MAC-only.
	RequestType     *domain.MACRequestType
	AffectedSystems []string

	// Support-only.
	Category *string
	Tags     []string
}

// RequestUpdateInput carries the mutable fields. Nil means not supplied;
// supplied fields the actor may not change are reported back as rejected
// instead of failing the whole update.
type RequestUpdateInput struct {
	Title               *string
	Description         *string
	Notes               *string
	Priority            *string
	Status              *string
	AssigneeID          *string
	RequestType         *domain.MACRequestType
	AffectedSystems     *[]string
	Category            *string
	Tags                *[]string
	Rating              *int
	Feedback            *string
	EstimatedCompletion *time.Time
	CancellationReason  *string
}

// FieldDiff reports which supplied fields were applied and which were
// refused for the actor's role.
type FieldDiff struct {
	Applied  []string
	Rejected []string
}

// RequestListInput narrows List results.
type RequestListInput struct {
	Statuses    []domain.RequestStatus
	Priorities  []domain.RequestPriority
	AssigneeID  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// Create validates input, resolves the owning organization, stamps the SLA
// estimate, and inserts the request under a freshly allocated ticket
// number. A ticket-number collision triggers re-allocation.
func (s *RequestService) Create(ctx context.Context, actor *domain.User, input RequestCreateInput) (*domain.Request, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, util.NewValidationError("title and description are required", nil)
	}

	priority, ok := domain.NormalizePriority(input.Priority)
	if !ok {
		return nil, util.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}

	if input.Kind == domain.KindMAC {
		if input.RequestType == nil || !domain.ValidMACRequestType(*input.RequestType) {
			return nil, util.NewValidationError("valid requestType is required for MAC requests", nil)
		}
	}

	orgID, err := s.resolveOrganization(ctx, actor, input.OrganizationID)
	if err != nil {
		return nil, err
	}

	createdAt := s.now().UTC()
	estimated := createdAt.Add(slaOffsets[priority])

	req := &domain.Request{
		Kind:                input.Kind,
		OrganizationID:      orgID,
		RequesterID:         actor.ID,
		Title:               title,
		Description:         description,
		Priority:            priority,
		Status:              domain.StatusPending,
		EstimatedCompletion: &estimated,
	}
	switch input.Kind {
	case domain.KindMAC:
		req.RequestType = input.RequestType
		req.AffectedSystems = input.AffectedSystems
	case domain.KindSupport:
		req.Category = input.Category
		req.Tags = input.Tags
	}

	if err := s.insertWithNumber(ctx, req); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:         events.EventRequestCreated,
		RequestID:    req.ID,
		TicketNumber: req.TicketNumber,
		ActorID:      actor.ID,
		Payload: events.RequestCreatedPayload{
			Kind:           req.Kind,
			OrganizationID: req.OrganizationID,
			RequesterID:    req.RequesterID,
			Priority:       req.Priority,
			Title:          req.Title,
		},
	})
	return req, nil
}

// Get fetches a request, enforcing visibility for the actor.
func (s *RequestService) Get(ctx context.Context, actor *domain.User, id string) (*domain.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, util.MapError(err)
	}
	if err := s.canView(actor, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetByTicketNumber resolves a request by its human-facing number.
func (s *RequestService) GetByTicketNumber(ctx context.Context, actor *domain.User, number string) (*domain.Request, error) {
	req, err := s.requests.GetByTicketNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, util.MapError(err)
	}
	if err := s.canView(actor, req); err != nil {
		return nil, err
	}
	return req, nil
}

// List returns requests of the kind visible to the actor. Admins see every
// organization; support is scoped to their organization when they have one;
// users and partners see only their own requests.
func (s *RequestService) List(ctx context.Context, actor *domain.User, kind domain.RequestKind, input RequestListInput) ([]domain.Request, error) {
	filter := repository.RequestFilter{
		Kind:        &kind,
		Statuses:    input.Statuses,
		Priorities:  input.Priorities,
		AssigneeID:  input.AssigneeID,
		CreatedFrom: input.CreatedFrom,
		CreatedTo:   input.CreatedTo,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	s.applyScope(&filter, actor)
	result, err := s.requests.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, util.MapError(err)
	}
	return result, nil
}

// Stats aggregates status/priority counts plus the most recent requests.
// Elevated roles only.
func (s *RequestService) Stats(ctx context.Context, actor *domain.User, kind domain.RequestKind, recentLimit int) (*repository.RequestStats, error) {
	if !actor.Role.Elevated() {
		return nil, util.NewForbidden("insufficient permissions")
	}
	var orgScope *string
	if actor.Role != domain.RoleAdmin {
		orgScope = actor.OrganizationID
	}
	stats, err := s.requests.Stats(ctx, kind, orgScope, recentLimit)
	if err != nil {
		return nil, util.MapError(err)
	}
	return stats, nil
}

// Update applies the supplied fields the actor is allowed to change and
// reports the rest as rejected. Status changes run through the transition
// table and stamp completion/cancellation metadata.
func (s *RequestService) Update(ctx context.Context, actor *domain.User, id string, input RequestUpdateInput) (*domain.Request, *FieldDiff, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, nil, util.MapError(err)
	}

	isOwner := req.RequesterID == actor.ID
	if !actor.Role.Elevated() && !isOwner {
		return nil, nil, util.NewForbidden("cannot modify this request")
	}

	diff := &FieldDiff{}
	oldStatus := req.Status
	oldAssignee := req.AssigneeID

	for _, change := range s.collectChanges(req, input) {
		if actor.Role.Elevated() || (isOwner && change.ownerAllowed) {
			if err := change.apply(); err != nil {
				return nil, nil, err
			}
			diff.Applied = append(diff.Applied, change.name)
		} else {
			diff.Rejected = append(diff.Rejected, change.name)
		}
	}

	if input.Status != nil {
		if !actor.Role.Elevated() {
			diff.Rejected = append(diff.Rejected, "status")
		} else if err := s.applyStatus(req, domain.RequestStatus(*input.Status), input.CancellationReason); err != nil {
			return nil, nil, err
		} else {
			diff.Applied = append(diff.Applied, "status")
		}
	}

	if len(diff.Applied) == 0 {
		return req, diff, nil
	}

	if err := s.requests.Update(ctx, req); err != nil {
		return nil, nil, util.MapError(err)
	}

	if req.Status != oldStatus {
		var reason string
		if req.CancellationReason != nil {
			reason = *req.CancellationReason
		}
		s.publishEvent(ctx, events.Event{
			Type:         events.EventRequestStatusChanged,
			RequestID:    req.ID,
			TicketNumber: req.TicketNumber,
			ActorID:      actor.ID,
			Payload: events.RequestStatusChangedPayload{
				RequesterID: req.RequesterID,
				OldStatus:   oldStatus,
				NewStatus:   req.Status,
				Reason:      reason,
			},
		})
	}
	if !sameAssignee(oldAssignee, req.AssigneeID) {
		s.publishEvent(ctx, events.Event{
			Type:         events.EventRequestAssigned,
			RequestID:    req.ID,
			TicketNumber: req.TicketNumber,
			ActorID:      actor.ID,
			Payload: events.RequestAssignedPayload{
				RequesterID: req.RequesterID,
				AssigneeID:  req.AssigneeID,
			},
		})
	}
	return req, diff, nil
}

// Delete removes a request. Admin only.
func (s *RequestService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if actor.Role != domain.RoleAdmin {
		return util.NewForbidden("only administrators can delete requests")
	}
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return util.MapError(err)
	}
	if err := s.requests.Delete(ctx, id); err != nil {
		return util.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:         events.EventRequestDeleted,
		RequestID:    req.ID,
		TicketNumber: req.TicketNumber,
		ActorID:      actor.ID,
		Payload:      events.RequestDeletedPayload{Kind: req.Kind},
	})
	return nil
}

// fieldChange is one supplied mutation with its ownership rule. Owners
// (non-elevated requesters) may touch only descriptive and feedback fields.
type fieldChange struct {
	name         string
	ownerAllowed bool
	apply        func() error
}

func (s *RequestService) collectChanges(req *domain.Request, input RequestUpdateInput) []fieldChange {
	var changes []fieldChange
	add := func(name string, ownerAllowed bool, apply func() error) {
		changes = append(changes, fieldChange{name: name, ownerAllowed: ownerAllowed, apply: apply})
	}

	if input.Title != nil {
		add("title", false, func() error {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return util.NewValidationError("title cannot be empty", nil)
			}
			req.Title = title
			return nil
		})
	}
	if input.Description != nil {
		add("description", true, func() error {
			req.Description = strings.TrimSpace(*input.Description)
			return nil
		})
	}
	if input.Notes != nil {
		add("notes", true, func() error {
			req.Notes = input.Notes
			return nil
		})
	}
	if input.Priority != nil {
		add("priority", false, func() error {
			priority, ok := domain.NormalizePriority(*input.Priority)
			if !ok {
				return util.NewValidationError("unknown priority", map[string]any{"priority": *input.Priority})
			}
			req.Priority = priority
			return nil
		})
	}
	if input.AssigneeID != nil {
		add("assigneeId", false, func() error {
			if *input.AssigneeID == "" {
				req.AssigneeID = nil
				return nil
			}
			req.AssigneeID = input.AssigneeID
			return nil
		})
	}
	if input.RequestType != nil {
		add("requestType", false, func() error {
			if req.Kind != domain.KindMAC {
				return util.NewValidationError("requestType applies to MAC requests only", nil)
			}
			if !domain.ValidMACRequestType(*input.RequestType) {
				return util.NewValidationError("unknown requestType", nil)
			}
			req.RequestType = input.RequestType
			return nil
		})
	}
	if input.AffectedSystems != nil {
		add("affectedSystems", true, func() error {
			req.AffectedSystems = *input.AffectedSystems
			return nil
		})
	}
	if input.Category != nil {
		add("category", false, func() error {
			req.Category = input.Category
			return nil
		})
	}
	if input.Tags != nil {
		add("tags", false, func() error {
			req.Tags = *input.Tags
			return nil
		})
	}
	if input.Rating != nil {
		add("rating", true, func() error {
			if *input.Rating < 1 || *input.Rating > 5 {
				return util.NewValidationError("rating must be between 1 and 5", nil)
			}
			req.Rating = input.Rating
			return nil
		})
	}
	if input.Feedback != nil {
		add("feedback", true, func() error {
			req.Feedback = input.Feedback
			return nil
		})
	}
	if input.EstimatedCompletion != nil {
		add("estimatedCompletion", false, func() error {
			req.EstimatedCompletion = input.EstimatedCompletion
			return nil
		})
	}
	return changes
}

// applyStatus validates the transition and stamps the timestamps the target
// state requires.
func (s *RequestService) applyStatus(req *domain.Request, next domain.RequestStatus, cancellationReason *string) error {
	if next == req.Status {
		return nil
	}
	if !domain.ValidTransition(req.Status, next) {
		return util.NewConflict("invalid status transition", map[string]any{
			"from": req.Status,
			"to":   next,
		})
	}

	now := s.now().UTC()
	switch next {
	case domain.StatusCompleted:
		req.CompletedAt = &now
		req.ActualCompletion = &now
	case domain.StatusCancelled:
		if cancellationReason == nil || strings.TrimSpace(*cancellationReason) == "" {
			return util.NewValidationError("cancellationReason is required when cancelling", nil)
		}
		reason := strings.TrimSpace(*cancellationReason)
		req.CancelledAt = &now
		req.CancellationReason = &reason
	}
	req.Status = next
	return nil
}

// resolveOrganization decides the owning organization of a new request.
// Admins may file on behalf of any organization; everyone else is bound to
// their own.
func (s *RequestService) resolveOrganization(ctx context.Context, actor *domain.User, override *string) (string, error) {
	orgID := actor.OrganizationID
	if actor.Role == domain.RoleAdmin && override != nil && *override != "" {
		orgID = override
	}
	if orgID == nil || *orgID == "" {
		return "", util.NewValidationError("organization is required", nil)
	}
	org, err := s.organizations.GetByID(ctx, *orgID)
	if err != nil {
		return "", util.MapError(err)
	}
	if !org.Active {
		return "", util.NewValidationError("organization is inactive", nil)
	}
	return org.ID, nil
}

func (s *RequestService) insertWithNumber(ctx context.Context, req *domain.Request) error {
	for attempt := 0; attempt < allocateAttempts; attempt++ {
		number, err := s.allocator.Allocate(ctx, req.Kind)
		if err != nil {
			return util.NewDependencyUnavailable("ticket numbering unavailable", err)
		}
		req.TicketNumber = number

		err = s.requests.Create(ctx, req)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return util.MapError(err)
		}
	}
	return util.NewConflict("could not allocate a unique ticket number", nil)
}

func (s *RequestService) canView(actor *domain.User, req *domain.Request) error {
	if actor.Role.Elevated() {
		return nil
	}
	if req.RequesterID != actor.ID {
		return util.NewForbidden("cannot access this request")
	}
	return nil
}

func (s *RequestService) applyScope(filter *repository.RequestFilter, actor *domain.User) {
	switch {
	case actor.Role == domain.RoleAdmin:
	case actor.Role.Elevated():
		if actor.OrganizationID != nil {
			filter.OrganizationID = actor.OrganizationID
		}
	default:
		requester := actor.ID
		filter.RequesterID = &requester
	}
}

func (s *RequestService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

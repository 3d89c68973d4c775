package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/pkg/util"
)

// SystemStatusService maintains the public status page. Reads are open;
// mutations are admin-gated.
type SystemStatusService struct {
	statuses repository.SystemStatusRepository
	now      func() time.Time
}

// NewSystemStatusService constructs the service.
func NewSystemStatusService(statuses repository.SystemStatusRepository) *SystemStatusService {
	return &SystemStatusService{statuses: statuses, now: time.Now}
}

// WithClock overrides the timestamp source. Test hook.
func (s *SystemStatusService) WithClock(now func() time.Time) *SystemStatusService {
	s.now = now
	return s
}

// ListStatuses returns every status-page entry, ordered by service name.
func (s *SystemStatusService) ListStatuses(ctx context.Context) ([]domain.SystemStatus, error) {
	result, err := s.statuses.List(ctx)
	if err != nil {
		return nil, util.MapError(err)
	}
	return result, nil
}

// StatusCreateInput registers a service on the status page.
type StatusCreateInput struct {
	ServiceName string
	Status      domain.ServiceState
	Description *string
}

// CreateStatus registers a new service entry, operational by default.
func (s *SystemStatusService) CreateStatus(ctx context.Context, actor *domain.User, input StatusCreateInput) (*domain.SystemStatus, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.ServiceName)
	if name == "" {
		return nil, util.NewValidationError("serviceName is required", nil)
	}
	state := input.Status
	if state == "" {
		state = domain.ServiceOperational
	}
	if !domain.ValidServiceState(state) {
		return nil, util.NewValidationError("unknown status", map[string]any{"status": state})
	}

	if existing, err := s.statuses.GetByServiceName(ctx, name); err == nil && existing != nil {
		return nil, util.NewConflict("service already registered", map[string]any{"serviceName": name})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, util.MapError(err)
	}

	now := s.now().UTC()
	status := &domain.SystemStatus{
		ServiceName:           name,
		Status:                state,
		Description:           input.Description,
		AffectedOrganizations: []string{},
		LastChecked:           now,
		Uptime:                100.0,
	}
	if state != domain.ServiceOperational {
		status.IncidentStart = &now
	}
	if err := s.statuses.Create(ctx, status); err != nil {
		return nil, util.MapError(err)
	}
	return status, nil
}

// StatusUpdateInput carries a status-page mutation. Nil fields are left
// unchanged.
type StatusUpdateInput struct {
	Status                *domain.ServiceState
	Description           *string
	AffectedOrganizations *[]string
	Uptime                *float64
}

// UpdateStatus changes one entry. Leaving operational opens the incident
// window; returning to operational closes it and clears the affected
// organization list.
func (s *SystemStatusService) UpdateStatus(ctx context.Context, actor *domain.User, id string, input StatusUpdateInput) (*domain.SystemStatus, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	status, err := s.statuses.GetByID(ctx, id)
	if err != nil {
		return nil, util.MapError(err)
	}

	now := s.now().UTC()
	if input.Status != nil && *input.Status != status.Status {
		next := *input.Status
		if !domain.ValidServiceState(next) {
			return nil, util.NewValidationError("unknown status", map[string]any{"status": next})
		}
		switch {
		case status.Status == domain.ServiceOperational && next != domain.ServiceOperational:
			status.IncidentStart = &now
			status.IncidentEnd = nil
		case next == domain.ServiceOperational:
			status.IncidentEnd = &now
			status.AffectedOrganizations = []string{}
		}
		status.Status = next
	}
	if input.Description != nil {
		status.Description = input.Description
	}
	if input.AffectedOrganizations != nil {
		status.AffectedOrganizations = *input.AffectedOrganizations
	}
	if input.Uptime != nil {
		status.Uptime = *input.Uptime
	}
	status.LastChecked = now

	if err := s.statuses.Update(ctx, status); err != nil {
		return nil, util.MapError(err)
	}
	return status, nil
}

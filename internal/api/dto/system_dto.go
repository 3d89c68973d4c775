package dto

import (
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

// SystemStatusResponse is the public status-page view of one service.
type SystemStatusResponse struct {
	ID                    string              `json:"id"`
	ServiceName           string              `json:"serviceName"`
	Status                domain.ServiceState `json:"status"`
	Description           *string             `json:"description"`
	AffectedOrganizations []string            `json:"affectedOrganizations"`
	IncidentStart         *time.Time          `json:"incidentStart"`
	IncidentEnd           *time.Time          `json:"incidentEnd"`
	LastChecked           time.Time           `json:"lastChecked"`
	Uptime                float64             `json:"uptime"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

// NewSystemStatusResponse maps one entry.
func NewSystemStatusResponse(status *domain.SystemStatus) SystemStatusResponse {
	return SystemStatusResponse{
		ID:                    status.ID,
		ServiceName:           status.ServiceName,
		Status:                status.Status,
		Description:           status.Description,
		AffectedOrganizations: status.AffectedOrganizations,
		IncidentStart:         status.IncidentStart,
		IncidentEnd:           status.IncidentEnd,
		LastChecked:           status.LastChecked,
		Uptime:                status.Uptime,
		UpdatedAt:             status.UpdatedAt,
	}
}

// SystemStatusCreateRequest registers a service on the status page.
type SystemStatusCreateRequest struct {
	ServiceName string  `json:"serviceName"`
	Status      string  `json:"status"`
	Description *string `json:"description"`
}

// SystemStatusUpdateRequest mutates one status-page entry.
type SystemStatusUpdateRequest struct {
	Status                *string   `json:"status"`
	Description           *string   `json:"description"`
	AffectedOrganizations *[]string `json:"affectedOrganizations"`
	Uptime                *float64  `json:"uptime"`
}

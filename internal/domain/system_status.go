package domain

import "time"

// ServiceState is the published health of one platform service.
type ServiceState string

const (
	ServiceOperational ServiceState = "operational"
	ServiceDegraded    ServiceState = "degraded"
	ServicePartialDown ServiceState = "partial_outage"
	ServiceMajorOutage ServiceState = "major_outage"
	ServiceMaintenance ServiceState = "maintenance"
)

// ValidServiceState reports whether the state is a known value.
func ValidServiceState(state ServiceState) bool {
	switch state {
	case ServiceOperational, ServiceDegraded, ServicePartialDown, ServiceMajorOutage, ServiceMaintenance:
		return true
	}
	return false
}

// SystemStatus is the public status-page entry for one service. An
// incident window opens when the service leaves operational and closes
// when it returns.
type SystemStatus struct {
	ID                    string
	ServiceName           string
	Status                ServiceState
	Description           *string
	AffectedOrganizations []string
	IncidentStart         *time.Time
	IncidentEnd           *time.Time
	LastChecked           time.Time
	Uptime                float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

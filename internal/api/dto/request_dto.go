package dto

import (
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
)

// CreateRequestRequest payload, shared by MAC requests and support tickets.
type CreateRequestRequest struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Priority       string  `json:"priority"`
	OrganizationID *string `json:"organizationId"`

	RequestType     *string  `json:"requestType"`
	AffectedSystems []string `json:"affectedSystems"`

	Category *string  `json:"category"`
	Tags     []string `json:"tags"`
}

// UpdateRequestRequest payload. Absent fields are left untouched.
type UpdateRequestRequest struct {
	Title               *string    `json:"title"`
	Description         *string    `json:"description"`
	Notes               *string    `json:"notes"`
	Priority            *string    `json:"priority"`
	Status              *string    `json:"status"`
	AssigneeID          *string    `json:"assigneeId"`
	RequestType         *string    `json:"requestType"`
	AffectedSystems     *[]string  `json:"affectedSystems"`
	Category            *string    `json:"category"`
	Tags                *[]string  `json:"tags"`
	Rating              *int       `json:"rating"`
	Feedback            *string    `json:"feedback"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion"`
	CancellationReason  *string    `json:"cancellationReason"`
}

// AssignRequest payload for explicit assignment.
type AssignRequest struct {
	AssigneeID string `json:"assigneeId"`
}

// RequestResponse is the public view of a request or ticket.
type RequestResponse struct {
	ID             string             `json:"id"`
	TicketNumber   string             `json:"ticketNumber"`
	Kind           domain.RequestKind `json:"kind"`
	OrganizationID string             `json:"organizationId"`
	RequesterID    string             `json:"requesterId"`
	AssigneeID     *string            `json:"assigneeId"`

	RequestType     *domain.MACRequestType `json:"requestType,omitempty"`
	AffectedSystems []string               `json:"affectedSystems,omitempty"`

	Category *string  `json:"category,omitempty"`
	Rating   *int     `json:"rating,omitempty"`
	Feedback *string  `json:"feedback,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Notes       *string                `json:"notes"`
	Priority    domain.RequestPriority `json:"priority"`
	Status      domain.RequestStatus   `json:"status"`

	EstimatedCompletion *time.Time `json:"estimatedCompletion"`
	ActualCompletion    *time.Time `json:"actualCompletion"`
	CompletedAt         *time.Time `json:"completedAt"`
	CancelledAt         *time.Time `json:"cancelledAt"`
	CancellationReason  *string    `json:"cancellationReason"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRequestResponse maps a domain request.
func NewRequestResponse(req *domain.Request) RequestResponse {
	return RequestResponse{
		ID:                  req.ID,
		TicketNumber:        req.TicketNumber,
		Kind:                req.Kind,
		OrganizationID:      req.OrganizationID,
		RequesterID:         req.RequesterID,
		AssigneeID:          req.AssigneeID,
		RequestType:         req.RequestType,
		AffectedSystems:     req.AffectedSystems,
		Category:            req.Category,
		Rating:              req.Rating,
		Feedback:            req.Feedback,
		Tags:                req.Tags,
		Title:               req.Title,
		Description:         req.Description,
		Notes:               req.Notes,
		Priority:            req.Priority,
		Status:              req.Status,
		EstimatedCompletion: req.EstimatedCompletion,
		ActualCompletion:    req.ActualCompletion,
		CompletedAt:         req.CompletedAt,
		CancelledAt:         req.CancelledAt,
		CancellationReason:  req.CancellationReason,
		CreatedAt:           req.CreatedAt,
		UpdatedAt:           req.UpdatedAt,
	}
}

// NewRequestResponses maps a slice.
func NewRequestResponses(reqs []domain.Request) []RequestResponse {
	result := make([]RequestResponse, 0, len(reqs))
	for i := range reqs {
		result = append(result, NewRequestResponse(&reqs[i]))
	}
	return result
}

// UpdateResultResponse pairs the updated request with the per-field
// authorization outcome.
type UpdateResultResponse struct {
	Request  RequestResponse `json:"request"`
	Applied  []string        `json:"applied"`
	Rejected []string        `json:"rejected,omitempty"`
}

// StatsResponse is the dashboard aggregate.
type StatsResponse struct {
	ByStatus   map[domain.RequestStatus]int64   `json:"byStatus"`
	ByPriority map[domain.RequestPriority]int64 `json:"byPriority"`
	Recent     []RequestResponse                `json:"recent"`
}

// NewStatsResponse maps repository stats.
func NewStatsResponse(stats *repository.RequestStats) StatsResponse {
	return StatsResponse{
		ByStatus:   stats.ByStatus,
		ByPriority: stats.ByPriority,
		Recent:     NewRequestResponses(stats.Recent),
	}
}

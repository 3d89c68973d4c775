package domain

import "time"

// RequestKind distinguishes MAC change requests from support tickets. Both
// share the same lifecycle; they differ in field sets and number prefix.
type RequestKind string

const (
	KindMAC     RequestKind = "MAC"
	KindSupport RequestKind = "SUPPORT"
)

// NumberPrefix returns the ticket-number prefix for the kind.
func (k RequestKind) NumberPrefix() string {
	if k == KindSupport {
		return "TKT"
	}
	return "MAC"
}

// RequestStatus enumerates lifecycle states.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
	StatusOnHold     RequestStatus = "on_hold"
)

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RequestPriority enumerates SLA urgency. "urgent" is accepted on input as
// an alias for critical and normalized before storage.
type RequestPriority string

const (
	PriorityLow      RequestPriority = "low"
	PriorityMedium   RequestPriority = "medium"
	PriorityHigh     RequestPriority = "high"
	PriorityCritical RequestPriority = "critical"
)

// NormalizePriority maps input values onto the stored set. The empty string
// defaults to medium; unknown values return false.
func NormalizePriority(raw string) (RequestPriority, bool) {
	switch RequestPriority(raw) {
	case "":
		return PriorityMedium, true
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return RequestPriority(raw), true
	case "urgent":
		return PriorityCritical, true
	}
	return "", false
}

// MACRequestType enumerates the change types for MAC requests.
type MACRequestType string

const (
	MACMove   MACRequestType = "move"
	MACAdd    MACRequestType = "add"
	MACChange MACRequestType = "change"
	MACRemove MACRequestType = "remove"
)

// ValidMACRequestType reports whether the value is a known change type.
func ValidMACRequestType(t MACRequestType) bool {
	switch t {
	case MACMove, MACAdd, MACChange, MACRemove:
		return true
	}
	return false
}

// Request is the aggregate for MAC requests and support tickets.
type Request struct {
	ID             string
	TicketNumber   string
	Kind           RequestKind
	OrganizationID string
	RequesterID    string
	AssigneeID     *string

	// MAC-only.
	RequestType     *MACRequestType
	AffectedSystems []string

	// Support-only.
	Category *string
	Rating   *int
	Feedback *string
	Tags     []string

	Title       string
	Description string
	Notes       *string
	Priority    RequestPriority
	Status      RequestStatus

	EstimatedCompletion *time.Time
	ActualCompletion    *time.Time
	CompletedAt         *time.Time
	CancelledAt         *time.Time
	CancellationReason  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusOnHold},
	StatusOnHold:     {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// ValidTransition reports whether current may move to next.
func ValidTransition(current, next RequestStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

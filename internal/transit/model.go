package transit

import (
	"time"

	"github.com/google/uuid"

	"github.com/hemolink/bloodbank/internal/blood"
)

type Status string

const (
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// Transit is the physical movement of exactly one unit from a source bank
// to a destination facility. At most one IN_TRANSIT row may exist per
// unit; the store enforces this with a partial unique index.
type Transit struct {
	ID            uuid.UUID
	UnitID        uuid.UUID
	SourceBankID  *uuid.UUID
	DestinationID uuid.UUID
	Vehicle       string
	RequestID     *uuid.UUID
	DispatchedAt  time.Time
	DeliveredAt   *time.Time
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

var validUrgencies = map[Urgency]bool{
	UrgencyLow: true, UrgencyMedium: true, UrgencyHigh: true, UrgencyCritical: true,
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestFulfilled RequestStatus = "FULFILLED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// Request is a facility's ask for units by blood group. Quantities are
// keyed by the closed group enum; raw strings never reach this type.
type Request struct {
	ID         uuid.UUID
	FacilityID uuid.UUID
	Urgency    Urgency
	Quantities map[blood.Group]int
	Status     RequestStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TotalUnits sums the asked quantities.
func (r *Request) TotalUnits() int {
	total := 0
	for _, n := range r.Quantities {
		total += n
	}
	return total
}

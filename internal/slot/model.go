package slot

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// Slot is a bookable window at a facility. Start and end are minutes from
// midnight; the token orders slots within a day starting at 1.
type Slot struct {
	ID          uuid.UUID
	FacilityID  uuid.UUID
	StartMinute int
	EndMinute   int
	Token       int
	Capacity    int
	Available   bool
	CreatedAt   time.Time
}

// StartClock renders the start as HH:MM.
func (s *Slot) StartClock() string { return clock(s.StartMinute) }

// EndClock renders the end as HH:MM.
func (s *Slot) EndClock() string { return clock(s.EndMinute) }

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// Appointment is a donor's reservation of one slot on one date.
type Appointment struct {
	ID            uuid.UUID
	DonorID       uuid.UUID
	SlotID        uuid.UUID
	FacilityID    uuid.UUID
	ScheduledDate time.Time // date only, midnight UTC
	Status        AppointmentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotFull            = errors.New("slot has no remaining capacity")
	ErrDuplicateBooking    = errors.New("donor already booked this slot")
)

// Repository contains all store interactions for slots and appointments.
type Repository interface {
	CreateSlots(ctx context.Context, slots []Slot) ([]Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListAvailableSlots(ctx context.Context, facilityID uuid.UUID) ([]Slot, error)

	// CreateAppointmentIfCapacity inserts the appointment only while the
	// count of non-cancelled appointments for (slot, date) is below the
	// slot's capacity, in one statement. ErrSlotFull when the guard
	// fails, ErrDuplicateBooking when the donor already holds a live
	// booking for the pair.
	CreateAppointmentIfCapacity(ctx context.Context, a Appointment) (*Appointment, error)

	CountActiveAppointments(ctx context.Context, slotID uuid.UUID, date time.Time) (int, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
}

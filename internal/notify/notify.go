package notify

import (
	"context"

	"github.com/google/uuid"
)

// Activity event types published by the core services.
const (
	EventDonationRecorded     = "DONATION_RECORDED"
	EventUnitTested           = "UNIT_TESTED"
	EventUnitConsumed         = "UNIT_CONSUMED"
	EventUnitDisposed         = "UNIT_DISPOSED"
	EventUnitInventoried      = "UNIT_INVENTORIED"
	EventSlotsGenerated       = "SLOTS_GENERATED"
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventTransitDispatched    = "TRANSIT_DISPATCHED"
	EventTransitDelivered     = "TRANSIT_DELIVERED"
	EventTransitFailed        = "TRANSIT_FAILED"
	EventRequestCreated       = "REQUEST_CREATED"
	EventRequestFulfilled     = "REQUEST_FULFILLED"
)

type Event struct {
	Type     string
	EntityID uuid.UUID
	Payload  map[string]any
}

// Sink receives activity events after core state changes. Implementations are
// best effort: Publish must never return an error that the caller would have
// to act on, so it returns nothing. A failing sink logs and moves on.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// Fanout publishes to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) {
	for _, s := range f {
		s.Publish(ctx, ev)
	}
}

// Nop discards all events. Handy in tests and the seed tool.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

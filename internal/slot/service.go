package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/notify"
	redisclient "github.com/hemolink/bloodbank/internal/redis"
)

var (
	ErrSlotUnavailable  = errors.New("slot is not open for booking")
	ErrDonorNotEligible = errors.New("donor is not currently eligible to donate")
	ErrBookingContended = errors.New("slot is currently being booked, please retry")
	ErrNotPending       = errors.New("appointment is not pending")
)

// Service generates finite-capacity slots and books donors into them.
// Capacity is enforced by a conditional insert in the store; the per
// (slot, date) lock only narrows the contention window.
type Service struct {
	repo   Repository
	dir    directory.Directory
	locker redisclient.Locker
	sink   notify.Sink
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, dir directory.Directory, locker redisclient.Locker, sink notify.Sink, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		dir:    dir,
		locker: locker,
		sink:   sink,
		log:    log,
		now:    time.Now,
	}
}

// Generate validates the window and persists the deterministic slot
// layout. Each call creates new rows; callers own not double-generating
// a day.
func (s *Service) Generate(ctx context.Context, p GenerateParams) ([]Slot, error) {
	if _, err := s.dir.GetFacility(ctx, p.FacilityID); err != nil {
		return nil, err
	}

	slots, err := BuildSlots(p)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateSlots(ctx, slots)
	if err != nil {
		return nil, fmt.Errorf("persist slots: %w", err)
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventSlotsGenerated,
		EntityID: p.FacilityID,
		Payload: map[string]any{
			"count":    len(created),
			"start":    p.StartTime,
			"end":      p.EndTime,
			"duration": p.Duration,
		},
	})

	return created, nil
}

// Book reserves one seat in a slot on a date for a donor. Checks run in
// order: slot open, donor eligible, capacity remaining.
func (s *Service) Book(ctx context.Context, slotID, donorID uuid.UUID, date time.Time) (*Appointment, error) {
	sl, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !sl.Available {
		return nil, ErrSlotUnavailable
	}

	donor, err := s.dir.GetDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if !donor.EligibleAt(s.now()) {
		return nil, ErrDonorNotEligible
	}

	date = date.UTC().Truncate(24 * time.Hour)
	key := fmt.Sprintf("lock:slot:%s:%s", slotID, date.Format("2006-01-02"))

	var booked *Appointment
	err = s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		// Early capacity read for a clean SlotFull; the conditional
		// insert still decides.
		n, err := s.repo.CountActiveAppointments(lockCtx, slotID, date)
		if err != nil {
			return fmt.Errorf("count appointments: %w", err)
		}
		if n >= sl.Capacity {
			return ErrSlotFull
		}

		appt, err := s.repo.CreateAppointmentIfCapacity(lockCtx, Appointment{
			DonorID:       donorID,
			SlotID:        slotID,
			FacilityID:    sl.FacilityID,
			ScheduledDate: date,
		})
		if err != nil {
			return err
		}

		booked = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventAppointmentBooked,
		EntityID: booked.ID,
		Payload: map[string]any{
			"slot_id":  slotID.String(),
			"donor_id": donorID.String(),
			"date":     date.Format("2006-01-02"),
		},
	})

	return booked, nil
}

// Cancel frees the donor's seat for the (slot, date) pair immediately.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, appointmentID, StatusCancelled, notify.EventAppointmentCancelled)
}

// Complete marks the appointment attended; the donation flow takes over
// from here.
func (s *Service) Complete(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, appointmentID, StatusCompleted, notify.EventAppointmentCompleted)
}

func (s *Service) transition(ctx context.Context, appointmentID uuid.UUID, to AppointmentStatus, event string) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending {
		return nil, ErrNotPending
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appointmentID, StatusPending, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrNotPending
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     event,
		EntityID: appointmentID,
		Payload:  map[string]any{"status": string(to)},
	})

	return updated, nil
}

// ListAvailable lists a facility's open slots ordered by token.
func (s *Service) ListAvailable(ctx context.Context, facilityID uuid.UUID) ([]Slot, error) {
	return s.repo.ListAvailableSlots(ctx, facilityID)
}

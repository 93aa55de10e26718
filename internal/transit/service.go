package transit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hemolink/bloodbank/internal/blood"
	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/notify"
	redisclient "github.com/hemolink/bloodbank/internal/redis"
)

var (
	ErrVehicleRequired   = errors.New("vehicle descriptor is required")
	ErrUnitTerminal      = errors.New("unit already consumed or disposed")
	ErrNotSafeForTransit = errors.New("only SAFE units may be moved")
	ErrUnitExpired       = errors.New("unit has passed its expiry date")
	ErrTransitNotActive  = errors.New("transit is not in transit")
	ErrEmptyRequest      = errors.New("request must ask for at least one unit")
	ErrInvalidQuantity   = errors.New("requested quantity must not be negative")
	ErrInvalidUrgency    = errors.New("unknown urgency level")
	ErrDispatchContended = errors.New("unit is currently being dispatched, please retry")
)

// Units is the read surface the coordinator needs from the unit store.
type Units interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*blood.BloodUnit, error)
}

// Service moves units between facilities. The one-active-transit rule is
// enforced twice: a pre-check inside the per-unit lock, and the partial
// unique index that rejects a losing concurrent insert outright.
type Service struct {
	repo   Repository
	units  Units
	dir    directory.Directory
	locker redisclient.Locker
	sink   notify.Sink
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, units Units, dir directory.Directory, locker redisclient.Locker, sink notify.Sink, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		units:  units,
		dir:    dir,
		locker: locker,
		sink:   sink,
		log:    log,
		now:    time.Now,
	}
}

type DispatchParams struct {
	UnitID        uuid.UUID
	DestinationID uuid.UUID
	Vehicle       string
	SourceBankID  *uuid.UUID
	RequestID     *uuid.UUID
	DispatchedAt  time.Time
}

// Dispatch creates an IN_TRANSIT movement for one unit. Preconditions are
// checked in a fixed order so each failure mode surfaces distinctly.
func (s *Service) Dispatch(ctx context.Context, p DispatchParams) (*Transit, error) {
	unit, err := s.units.GetUnit(ctx, p.UnitID)
	if err != nil {
		return nil, err
	}
	if _, err := s.dir.GetFacility(ctx, p.DestinationID); err != nil {
		return nil, err
	}
	if p.Vehicle == "" {
		return nil, ErrVehicleRequired
	}

	if unit.Terminal() {
		return nil, ErrUnitTerminal
	}
	if unit.Status != blood.StatusSafe {
		return nil, ErrNotSafeForTransit
	}
	if !unit.Available(s.now()) {
		return nil, ErrUnitExpired
	}

	if p.SourceBankID != nil {
		if _, err := s.dir.GetFacility(ctx, *p.SourceBankID); err != nil {
			return nil, err
		}
	}
	if p.RequestID != nil {
		if _, err := s.repo.GetRequest(ctx, *p.RequestID); err != nil {
			return nil, err
		}
	}

	if p.DispatchedAt.IsZero() {
		p.DispatchedAt = s.now()
	}

	var created *Transit
	key := fmt.Sprintf("lock:unit:%s", p.UnitID)

	err = s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		existing, err := s.repo.GetActiveTransitForUnit(lockCtx, p.UnitID)
		if err != nil && !errors.Is(err, ErrTransitNotFound) {
			return fmt.Errorf("check active transit: %w", err)
		}
		if existing != nil {
			return ErrTransitConflict
		}

		t, err := s.repo.CreateTransit(lockCtx, Transit{
			UnitID:        p.UnitID,
			SourceBankID:  p.SourceBankID,
			DestinationID: p.DestinationID,
			Vehicle:       p.Vehicle,
			RequestID:     p.RequestID,
			DispatchedAt:  p.DispatchedAt,
		})
		if err != nil {
			return err
		}

		created = t
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDispatchContended
		}
		return nil, err
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventTransitDispatched,
		EntityID: created.ID,
		Payload: map[string]any{
			"unit_id":        p.UnitID.String(),
			"destination_id": p.DestinationID.String(),
			"vehicle":        p.Vehicle,
		},
	})

	return created, nil
}

// Complete marks a transit delivered. The TRANSIT_DELIVERED event is the
// hook for the caller-side effect: marking the unit consumed, or placing
// it into the destination's inventory.
func (s *Service) Complete(ctx context.Context, transitID uuid.UUID) (*Transit, error) {
	return s.finish(ctx, transitID, StatusDelivered, notify.EventTransitDelivered)
}

// Fail marks a transit failed; the unit stays wherever it physically is
// and remains eligible for a new dispatch.
func (s *Service) Fail(ctx context.Context, transitID uuid.UUID) (*Transit, error) {
	return s.finish(ctx, transitID, StatusFailed, notify.EventTransitFailed)
}

func (s *Service) finish(ctx context.Context, transitID uuid.UUID, to Status, event string) (*Transit, error) {
	t, err := s.repo.GetTransit(ctx, transitID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusInTransit {
		return nil, ErrTransitNotActive
	}

	updated, err := s.repo.UpdateTransitStatus(ctx, transitID, StatusInTransit, to)
	if err != nil {
		if errors.Is(err, ErrTransitNotFound) {
			return nil, ErrTransitNotActive
		}
		return nil, fmt.Errorf("update transit: %w", err)
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     event,
		EntityID: transitID,
		Payload: map[string]any{
			"unit_id":        updated.UnitID.String(),
			"destination_id": updated.DestinationID.String(),
		},
	})

	return updated, nil
}

func (s *Service) ListForBank(ctx context.Context, bankID uuid.UUID) ([]Transit, error) {
	return s.repo.ListForBank(ctx, bankID)
}

func (s *Service) ListForHospital(ctx context.Context, hospitalID uuid.UUID) ([]Transit, error) {
	return s.repo.ListForHospital(ctx, hospitalID)
}

// CreateRequest validates and records a facility's ask for units.
func (s *Service) CreateRequest(ctx context.Context, facilityID uuid.UUID, urgency Urgency, quantities map[blood.Group]int) (*Request, error) {
	if !validUrgencies[urgency] {
		return nil, ErrInvalidUrgency
	}

	total := 0
	for g, n := range quantities {
		if n < 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, g)
		}
		total += n
	}
	if total <= 0 {
		return nil, ErrEmptyRequest
	}

	if _, err := s.dir.GetFacility(ctx, facilityID); err != nil {
		return nil, err
	}

	req, err := s.repo.CreateRequest(ctx, Request{
		FacilityID: facilityID,
		Urgency:    urgency,
		Quantities: quantities,
	})
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventRequestCreated,
		EntityID: req.ID,
		Payload: map[string]any{
			"facility_id": facilityID.String(),
			"urgency":     string(urgency),
			"total_units": total,
		},
	})

	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetRequest(ctx, id)
}

// MarkRequestFulfilled closes a pending request once enough delivered
// transits reference it.
func (s *Service) MarkRequestFulfilled(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.UpdateRequestStatus(ctx, id, RequestPending, RequestFulfilled)
	if err != nil {
		return nil, err
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventRequestFulfilled,
		EntityID: id,
		Payload:  map[string]any{},
	})

	return req, nil
}

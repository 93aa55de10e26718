package blood

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/notify"
)

var (
	ErrInvalidTransition = errors.New("unit is not awaiting a test result")
	ErrUnitTerminal      = errors.New("unit already consumed or disposed")
	ErrUnitNotAvailable  = errors.New("unit is not available")
	ErrInvalidBagSpec    = errors.New("invalid bag specification")
)

// Service owns the lifecycle of a blood unit from donation to terminal
// disposition. Every transition is one-way and guarded by a
// compare-and-set in the repository, so concurrent callers cannot both
// win a transition.
type Service struct {
	repo Repository
	dir  directory.Directory
	sink notify.Sink
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo Repository, dir directory.Directory, sink notify.Sink, log *zap.Logger) *Service {
	return &Service{
		repo: repo,
		dir:  dir,
		sink: sink,
		log:  log,
		now:  time.Now,
	}
}

var validBagTypes = map[BagType]bool{
	BagSingle: true,
	BagDouble: true,
	BagTriple: true,
	BagQuad:   true,
}

// RecordDonation registers a completed donation and creates one PENDING
// unit per collected bag. The donor's deferral window starts now.
func (s *Service) RecordDonation(ctx context.Context, donorID, facilityID uuid.UUID, bags []BagSpec) (*Donation, []BloodUnit, error) {
	if len(bags) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one bag required", ErrInvalidBagSpec)
	}
	for i, b := range bags {
		if b.VolumeML <= 0 {
			return nil, nil, fmt.Errorf("%w: bag %d volume must be positive", ErrInvalidBagSpec, i)
		}
		if b.Units < 1 {
			return nil, nil, fmt.Errorf("%w: bag %d unit count must be at least 1", ErrInvalidBagSpec, i)
		}
		if !validBagTypes[b.BagType] {
			return nil, nil, fmt.Errorf("%w: bag %d has unknown type %q", ErrInvalidBagSpec, i, b.BagType)
		}
	}

	if _, err := s.dir.GetDonor(ctx, donorID); err != nil {
		return nil, nil, err
	}
	if _, err := s.dir.GetFacility(ctx, facilityID); err != nil {
		return nil, nil, err
	}

	collectedAt := s.now()

	donation, err := s.repo.CreateDonation(ctx, donorID, facilityID, collectedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("create donation: %w", err)
	}

	inv := facilityID
	units := make([]BloodUnit, 0, len(bags))
	for _, b := range bags {
		u, err := s.repo.CreateUnit(ctx, BloodUnit{
			DonationID:  donation.ID,
			Units:       b.Units,
			VolumeML:    b.VolumeML,
			BagType:     b.BagType,
			CollectedAt: collectedAt,
			ExpiresAt:   collectedAt.Add(ShelfLife),
			InventoryID: &inv,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create unit: %w", err)
		}
		units = append(units, *u)
	}

	if err := s.dir.SetDonorNextEligible(ctx, donorID, collectedAt.Add(DonorDeferral)); err != nil {
		s.log.Warn("update donor eligibility", zap.String("donor_id", donorID.String()), zap.Error(err))
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventDonationRecorded,
		EntityID: donation.ID,
		Payload: map[string]any{
			"donor_id":    donorID.String(),
			"facility_id": facilityID.String(),
			"bags":        len(bags),
		},
	})

	return donation, units, nil
}

// RecordTestResult moves a unit PENDING -> SAFE or PENDING -> UNSAFE,
// recording the ABO/Rh result. Any second call fails.
func (s *Service) RecordTestResult(ctx context.Context, unitID uuid.UUID, outcome TestOutcome, group Group) (*BloodUnit, error) {
	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.SetTestResult(ctx, unitID, outcome, group, s.now())
	if err != nil {
		if errors.Is(err, ErrUnitNotFound) {
			// Lost the CAS to a concurrent tester.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("record test result: %w", err)
	}

	if outcome == OutcomeUnsafe {
		if updated, err = s.repo.DisposeUnit(ctx, unitID, DisposalUnsafe); err != nil {
			if !errors.Is(err, ErrUnitNotFound) {
				return nil, fmt.Errorf("dispose unsafe unit: %w", err)
			}
			s.log.Warn("unsafe unit already terminal", zap.String("unit_id", unitID.String()))
		}
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventUnitTested,
		EntityID: unitID,
		Payload: map[string]any{
			"outcome": string(outcome),
			"group":   string(group),
		},
	})

	return updated, nil
}

// MarkConsumed terminates an available unit that fulfilled a transfusion
// or request.
func (s *Service) MarkConsumed(ctx context.Context, unitID uuid.UUID) (*BloodUnit, error) {
	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Terminal() {
		return nil, ErrUnitTerminal
	}
	if !unit.Available(s.now()) {
		return nil, ErrUnitNotAvailable
	}

	updated, err := s.repo.ConsumeUnit(ctx, unitID, s.now())
	if err != nil {
		if errors.Is(err, ErrUnitNotFound) {
			return nil, ErrUnitNotAvailable
		}
		return nil, fmt.Errorf("consume unit: %w", err)
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventUnitConsumed,
		EntityID: unitID,
		Payload:  map[string]any{},
	})

	return updated, nil
}

// Dispose terminates a unit for the given reason. Consumed or already
// disposed units cannot be disposed again.
func (s *Service) Dispose(ctx context.Context, unitID uuid.UUID, reason DisposalReason) (*BloodUnit, error) {
	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Terminal() {
		return nil, ErrUnitTerminal
	}

	updated, err := s.repo.DisposeUnit(ctx, unitID, reason)
	if err != nil {
		if errors.Is(err, ErrUnitNotFound) {
			return nil, ErrUnitTerminal
		}
		return nil, fmt.Errorf("dispose unit: %w", err)
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventUnitDisposed,
		EntityID: unitID,
		Payload:  map[string]any{"reason": string(reason)},
	})

	return updated, nil
}

// PlaceInInventory assigns a safe, active unit to a facility's inventory,
// e.g. after a delivered transit.
func (s *Service) PlaceInInventory(ctx context.Context, unitID, inventoryID uuid.UUID) (*BloodUnit, error) {
	if _, err := s.dir.GetFacility(ctx, inventoryID); err != nil {
		return nil, err
	}

	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Terminal() {
		return nil, ErrUnitTerminal
	}
	if unit.Status != StatusSafe {
		return nil, ErrUnitNotAvailable
	}

	updated, err := s.repo.SetInventory(ctx, unitID, inventoryID)
	if err != nil {
		if errors.Is(err, ErrUnitNotFound) {
			return nil, ErrUnitTerminal
		}
		return nil, fmt.Errorf("place in inventory: %w", err)
	}

	s.sink.Publish(ctx, notify.Event{
		Type:     notify.EventUnitInventoried,
		EntityID: unitID,
		Payload:  map[string]any{"inventory_id": inventoryID.String()},
	})

	return updated, nil
}

// SweepExpired disposes every expired, non-terminal unit. The sweep is
// idempotent: units another run already disposed are skipped, not errors.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListExpiredActive(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired units: %w", err)
	}

	disposed := 0
	for _, u := range candidates {
		if _, err := s.repo.DisposeUnit(ctx, u.ID, DisposalExpired); err != nil {
			if errors.Is(err, ErrUnitNotFound) {
				continue
			}
			s.log.Warn("dispose expired unit", zap.String("unit_id", u.ID.String()), zap.Error(err))
			continue
		}
		disposed++

		s.sink.Publish(ctx, notify.Event{
			Type:     notify.EventUnitDisposed,
			EntityID: u.ID,
			Payload:  map[string]any{"reason": string(DisposalExpired), "sweep": true},
		})
	}

	return disposed, nil
}

// GetUnit returns a unit with its tested group, if any.
func (s *Service) GetUnit(ctx context.Context, unitID uuid.UUID) (*BloodUnit, error) {
	return s.repo.GetUnit(ctx, unitID)
}

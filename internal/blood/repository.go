package blood

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnitNotFound     = errors.New("blood unit not found")
	ErrDonationNotFound = errors.New("donation not found")
)

// Repository contains all store interactions for units and donations.
// Conditional updates (status CAS, consume, dispose) affect zero rows when
// the guard fails and report ErrUnitNotFound; the service turns that into
// the precise domain error after inspecting the unit.
type Repository interface {
	CreateDonation(ctx context.Context, donorID, facilityID uuid.UUID, donatedAt time.Time) (*Donation, error)
	CreateUnit(ctx context.Context, u BloodUnit) (*BloodUnit, error)
	GetUnit(ctx context.Context, id uuid.UUID) (*BloodUnit, error)

	// State transitions, all compare-and-set on current state.
	SetTestResult(ctx context.Context, unitID uuid.UUID, outcome TestOutcome, group Group, testedAt time.Time) (*BloodUnit, error)
	ConsumeUnit(ctx context.Context, unitID uuid.UUID, asOf time.Time) (*BloodUnit, error)
	DisposeUnit(ctx context.Context, unitID uuid.UUID, reason DisposalReason) (*BloodUnit, error)
	SetInventory(ctx context.Context, unitID, inventoryID uuid.UUID) (*BloodUnit, error)

	// Expired sweep support.
	ListExpiredActive(ctx context.Context, asOf time.Time) ([]BloodUnit, error)

	// Read projections, all over the same availability predicate.
	CountAvailable(ctx context.Context, inventoryID uuid.UUID, filter GroupFilter, asOf time.Time) (units int, records int, err error)
	ListAvailable(ctx context.Context, inventoryID uuid.UUID, filter GroupFilter, asOf time.Time) ([]BloodUnit, error)
	ListExpired(ctx context.Context, inventoryID uuid.UUID, asOf time.Time) ([]BloodUnit, error)
	ListNearingExpiry(ctx context.Context, inventoryID uuid.UUID, asOf, horizon time.Time) ([]BloodUnit, error)
	ListByInventory(ctx context.Context, inventoryID uuid.UUID) ([]BloodUnit, error)
}

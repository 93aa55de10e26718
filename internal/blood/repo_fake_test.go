package blood

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository with the same compare-and-set
// semantics as the Postgres implementation, safe for concurrent use.
type fakeRepo struct {
	mu        sync.Mutex
	donations map[uuid.UUID]Donation
	units     map[uuid.UUID]BloodUnit
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		donations: make(map[uuid.UUID]Donation),
		units:     make(map[uuid.UUID]BloodUnit),
	}
}

func (f *fakeRepo) CreateDonation(_ context.Context, donorID, facilityID uuid.UUID, donatedAt time.Time) (*Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := Donation{
		ID:         uuid.New(),
		DonorID:    donorID,
		FacilityID: facilityID,
		DonatedAt:  donatedAt,
		CreatedAt:  donatedAt,
	}
	f.donations[d.ID] = d
	return &d, nil
}

func (f *fakeRepo) CreateUnit(_ context.Context, u BloodUnit) (*BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Status = StatusPending
	f.units[u.ID] = u
	out := u
	return &out, nil
}

func (f *fakeRepo) GetUnit(_ context.Context, id uuid.UUID) (*BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.units[id]
	if !ok {
		return nil, ErrUnitNotFound
	}
	out := u
	return &out, nil
}

func (f *fakeRepo) SetTestResult(_ context.Context, unitID uuid.UUID, outcome TestOutcome, group Group, _ time.Time) (*BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.units[unitID]
	if !ok || u.Status != StatusPending {
		return nil, ErrUnitNotFound
	}
	u.Status = TestStatus(outcome)
	u.Group = &group
	f.units[unitID] = u
	out := u
	return &out, nil
}

func (f *fakeRepo) ConsumeUnit(_ context.Context, unitID uuid.UUID, asOf time.Time) (*BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.units[unitID]
	if !ok || !u.Available(asOf) {
		return nil, ErrUnitNotFound
	}
	u.Consumed = true
	f.units[unitID] = u
	out := u
	return &out, nil
}

func (f *fakeRepo) DisposeUnit(_ context.Context, unitID uuid.UUID, reason DisposalReason) (*BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.units[unitID]
	if !ok || u.Consumed || u.Disposed {
		return nil, ErrUnitNotFound
	}
	u.Disposed = true
	u.DisposalReason = &reason
	f.units[unitID] = u
	out := u
	return &out, nil
}

func (f *fakeRepo) SetInventory(_ context.Context, unitID, inventoryID uuid.UUID) (*BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.units[unitID]
	if !ok || u.Consumed || u.Disposed {
		return nil, ErrUnitNotFound
	}
	u.InventoryID = &inventoryID
	f.units[unitID] = u
	out := u
	return &out, nil
}

func (f *fakeRepo) ListExpiredActive(_ context.Context, asOf time.Time) ([]BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []BloodUnit
	for _, u := range f.units {
		if u.ExpiresAt.Before(asOf) && !u.Consumed && !u.Disposed {
			result = append(result, u)
		}
	}
	return result, nil
}

func (f *fakeRepo) inInventory(u BloodUnit, inventoryID uuid.UUID) bool {
	return u.InventoryID != nil && *u.InventoryID == inventoryID
}

func (f *fakeRepo) CountAvailable(_ context.Context, inventoryID uuid.UUID, filter GroupFilter, asOf time.Time) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	units, records := 0, 0
	for _, u := range f.units {
		if f.inInventory(u, inventoryID) && u.Available(asOf) && filter.Matches(u.Group) {
			units += u.Units
			records++
		}
	}
	return units, records, nil
}

func (f *fakeRepo) ListAvailable(_ context.Context, inventoryID uuid.UUID, filter GroupFilter, asOf time.Time) ([]BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []BloodUnit
	for _, u := range f.units {
		if f.inInventory(u, inventoryID) && u.Available(asOf) && filter.Matches(u.Group) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (f *fakeRepo) ListExpired(_ context.Context, inventoryID uuid.UUID, asOf time.Time) ([]BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []BloodUnit
	for _, u := range f.units {
		if f.inInventory(u, inventoryID) && !u.Disposed && u.ExpiresAt.Before(asOf) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (f *fakeRepo) ListNearingExpiry(_ context.Context, inventoryID uuid.UUID, asOf, horizon time.Time) ([]BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []BloodUnit
	for _, u := range f.units {
		if f.inInventory(u, inventoryID) && u.Available(asOf) && !u.ExpiresAt.After(horizon) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (f *fakeRepo) ListByInventory(_ context.Context, inventoryID uuid.UUID) ([]BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []BloodUnit
	for _, u := range f.units {
		if f.inInventory(u, inventoryID) {
			result = append(result, u)
		}
	}
	return result, nil
}

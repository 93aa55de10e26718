package blood

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Inventory is the read side over blood units: how many safe, unexpired
// units a facility holds and which ones. All projections share the
// repository's single availability predicate.
type Inventory struct {
	repo          Repository
	expiryHorizon time.Duration
	now           func() time.Time
}

func NewInventory(repo Repository, expiryHorizon time.Duration) *Inventory {
	if expiryHorizon <= 0 {
		expiryHorizon = 7 * 24 * time.Hour
	}
	return &Inventory{
		repo:          repo,
		expiryHorizon: expiryHorizon,
		now:           time.Now,
	}
}

// Availability is the answer to "can this inventory cover a request".
type Availability struct {
	UnitsAvailable int
	RecordCount    int
	Requested      int
	Sufficient     bool
}

// CheckAvailability counts available units, optionally narrowed to one
// blood group, against a requested quantity.
func (inv *Inventory) CheckAvailability(ctx context.Context, inventoryID uuid.UUID, filter GroupFilter, requested int) (*Availability, error) {
	units, records, err := inv.repo.CountAvailable(ctx, inventoryID, filter, inv.now())
	if err != nil {
		return nil, err
	}
	return &Availability{
		UnitsAvailable: units,
		RecordCount:    records,
		Requested:      requested,
		Sufficient:     requested > 0 && units >= requested,
	}, nil
}

func (inv *Inventory) ListAvailable(ctx context.Context, inventoryID uuid.UUID, filter GroupFilter) ([]BloodUnit, error) {
	return inv.repo.ListAvailable(ctx, inventoryID, filter, inv.now())
}

func (inv *Inventory) ListExpired(ctx context.Context, inventoryID uuid.UUID) ([]BloodUnit, error) {
	return inv.repo.ListExpired(ctx, inventoryID, inv.now())
}

func (inv *Inventory) ListNearingExpiry(ctx context.Context, inventoryID uuid.UUID) ([]BloodUnit, error) {
	asOf := inv.now()
	return inv.repo.ListNearingExpiry(ctx, inventoryID, asOf, asOf.Add(inv.expiryHorizon))
}

func (inv *Inventory) ListByInventory(ctx context.Context, inventoryID uuid.UUID) ([]BloodUnit, error) {
	return inv.repo.ListByInventory(ctx, inventoryID)
}

// GroupBuckets splits an inventory's available units into the 8 standard
// ABO/Rh buckets. Buckets are always present, even when empty.
func (inv *Inventory) GroupBuckets(ctx context.Context, inventoryID uuid.UUID) ([]GroupBucket, error) {
	units, err := inv.repo.ListAvailable(ctx, inventoryID, NoFilter(), inv.now())
	if err != nil {
		return nil, err
	}

	byGroup := make(map[Group]*GroupBucket, len(Groups))
	buckets := make([]GroupBucket, len(Groups))
	for i, g := range Groups {
		buckets[i] = GroupBucket{Group: g}
		byGroup[g] = &buckets[i]
	}

	for _, u := range units {
		if u.Group == nil {
			continue
		}
		b, ok := byGroup[*u.Group]
		if !ok {
			continue
		}
		b.Units += u.Units
		b.IDs = append(b.IDs, u.ID)
	}

	return buckets, nil
}

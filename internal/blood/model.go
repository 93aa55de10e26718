package blood

import (
	"time"

	"github.com/google/uuid"
)

// ShelfLife is the fixed whole-blood shelf life; expiry is always
// collection time plus this.
const ShelfLife = 35 * 24 * time.Hour

// DonorDeferral is how long after a donation a donor stays ineligible.
const DonorDeferral = 90 * 24 * time.Hour

type TestStatus string

const (
	StatusPending TestStatus = "PENDING"
	StatusSafe    TestStatus = "SAFE"
	StatusUnsafe  TestStatus = "UNSAFE"
)

type TestOutcome string

const (
	OutcomeSafe   TestOutcome = "SAFE"
	OutcomeUnsafe TestOutcome = "UNSAFE"
)

type BagType string

const (
	BagSingle BagType = "SINGLE"
	BagDouble BagType = "DOUBLE"
	BagTriple BagType = "TRIPLE"
	BagQuad   BagType = "QUAD"
)

type DisposalReason string

const (
	DisposalExpired DisposalReason = "EXPIRED"
	DisposalUnsafe  DisposalReason = "UNSAFE"
	DisposalWasted  DisposalReason = "WASTED"
)

// BloodUnit is one physical collection bag.
type BloodUnit struct {
	ID             uuid.UUID
	DonationID     uuid.UUID
	Units          int // physical bag count folded into this record, usually 1
	VolumeML       float64
	BagType        BagType
	CollectedAt    time.Time
	ExpiresAt      time.Time
	Status         TestStatus
	Consumed       bool
	Disposed       bool
	DisposalReason *DisposalReason
	InventoryID    *uuid.UUID
	Group          *Group // from the completed blood test, nil until tested
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Available is the single availability predicate every read projection and
// guard reuses: SAFE, unconsumed, undisposed, unexpired.
func (u *BloodUnit) Available(asOf time.Time) bool {
	return u.Status == StatusSafe && !u.Consumed && !u.Disposed && asOf.Before(u.ExpiresAt)
}

// Expired mirrors the disposal sweep condition.
func (u *BloodUnit) Expired(asOf time.Time) bool {
	return !u.Disposed && u.ExpiresAt.Before(asOf)
}

// Terminal reports whether the unit has reached a terminal flag.
func (u *BloodUnit) Terminal() bool {
	return u.Consumed || u.Disposed
}

type Donation struct {
	ID         uuid.UUID
	DonorID    uuid.UUID
	FacilityID uuid.UUID
	DonatedAt  time.Time
	CreatedAt  time.Time
}

// BagSpec describes one bag collected during a donation.
type BagSpec struct {
	VolumeML float64
	BagType  BagType
	Units    int
}

type BloodTest struct {
	ID       uuid.UUID
	UnitID   uuid.UUID
	Outcome  TestOutcome
	Group    Group
	TestedAt time.Time
}

// GroupBucket is one row of the by-group availability report.
type GroupBucket struct {
	Group Group       `json:"group"`
	Units int         `json:"units"`
	IDs   []uuid.UUID `json:"unit_ids"`
}

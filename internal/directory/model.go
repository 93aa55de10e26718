package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDonorNotFound    = errors.New("donor not found")
	ErrFacilityNotFound = errors.New("facility not found")
)

type FacilityKind string

const (
	FacilityBloodBank FacilityKind = "BLOOD_BANK"
	FacilityHospital  FacilityKind = "HOSPITAL"
	FacilityCamp      FacilityKind = "CAMP"
)

type Donor struct {
	ID               uuid.UUID
	Name             string
	Email            *string
	BloodGroup       *string
	NextEligibleDate *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EligibleAt reports whether the donor may donate at the given instant.
// A donor with no recorded next-eligible date has never donated.
func (d *Donor) EligibleAt(now time.Time) bool {
	return d.NextEligibleDate == nil || !now.Before(*d.NextEligibleDate)
}

type Facility struct {
	ID        uuid.UUID
	Name      string
	Kind      FacilityKind
	Address   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Directory is the donor/facility lookup surface the core services depend on.
type Directory interface {
	GetDonor(ctx context.Context, id uuid.UUID) (*Donor, error)
	GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error)
	SetDonorNextEligible(ctx context.Context, donorID uuid.UUID, next time.Time) error
}

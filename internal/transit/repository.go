package transit

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrTransitNotFound = errors.New("transit not found")
	ErrRequestNotFound = errors.New("blood request not found")
	ErrTransitConflict = errors.New("unit already has an active transit")
)

// Repository contains all store interactions for transits and requests.
// CreateTransit reports ErrTransitConflict when the one-active-transit
// constraint rejects the insert.
type Repository interface {
	CreateTransit(ctx context.Context, t Transit) (*Transit, error)
	GetTransit(ctx context.Context, id uuid.UUID) (*Transit, error)
	GetActiveTransitForUnit(ctx context.Context, unitID uuid.UUID) (*Transit, error)
	UpdateTransitStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Transit, error)
	ListForBank(ctx context.Context, bankID uuid.UUID) ([]Transit, error)
	ListForHospital(ctx context.Context, hospitalID uuid.UUID) ([]Transit, error)

	CreateRequest(ctx context.Context, r Request) (*Request, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus) (*Request, error)
}

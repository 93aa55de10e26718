package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetDonor(ctx context.Context, id uuid.UUID) (*Donor, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, email, blood_group, next_eligible_date, created_at, updated_at
		FROM donors
		WHERE id = $1
	`, id)

	var dn Donor
	err := row.Scan(&dn.ID, &dn.Name, &dn.Email, &dn.BloodGroup, &dn.NextEligibleDate, &dn.CreatedAt, &dn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}
	return &dn, nil
}

func (d *PgDirectory) GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, kind, address, created_at, updated_at
		FROM facilities
		WHERE id = $1
	`, id)

	var f Facility
	err := row.Scan(&f.ID, &f.Name, &f.Kind, &f.Address, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFacilityNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (d *PgDirectory) SetDonorNextEligible(ctx context.Context, donorID uuid.UUID, next time.Time) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE donors
		SET next_eligible_date = $2,
		    updated_at = now()
		WHERE id = $1
	`, donorID, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDonorNotFound
	}
	return nil
}

func (d *PgDirectory) CreateDonor(ctx context.Context, name string, email *string, bloodGroup *string) (*Donor, error) {
	id := uuid.New()
	row := d.pool.QueryRow(ctx, `
		INSERT INTO donors (id, name, email, blood_group, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, name, email, blood_group, next_eligible_date, created_at, updated_at
	`, id, name, email, bloodGroup)

	var dn Donor
	err := row.Scan(&dn.ID, &dn.Name, &dn.Email, &dn.BloodGroup, &dn.NextEligibleDate, &dn.CreatedAt, &dn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &dn, nil
}

func (d *PgDirectory) CreateFacility(ctx context.Context, name string, kind FacilityKind, address *string) (*Facility, error) {
	id := uuid.New()
	row := d.pool.QueryRow(ctx, `
		INSERT INTO facilities (id, name, kind, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, name, kind, address, created_at, updated_at
	`, id, name, kind, address)

	var f Facility
	err := row.Scan(&f.ID, &f.Name, &f.Kind, &f.Address, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

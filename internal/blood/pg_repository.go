package blood

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// unitColumns selects a unit left-joined to its blood test so the tested
// group rides along on every read.
const unitColumns = `
	u.id, u.donation_id, u.units, u.volume_ml, u.bag_type,
	u.collected_at, u.expires_at, u.status, u.consumed, u.disposed,
	u.disposal_reason, u.inventory_id, t.blood_group, u.created_at, u.updated_at`

const unitFrom = `
	FROM blood_units u
	LEFT JOIN blood_tests t ON t.unit_id = u.id`

// availableCond is the one definition of "available" shared by every
// projection. $1 is the as-of instant wherever this fragment is used.
const availableCond = `
	u.status = 'SAFE' AND NOT u.consumed AND NOT u.disposed AND u.expires_at > $1`

func scanUnit(row pgx.Row) (*BloodUnit, error) {
	var u BloodUnit
	var reason *string
	var group *string

	err := row.Scan(
		&u.ID,
		&u.DonationID,
		&u.Units,
		&u.VolumeML,
		&u.BagType,
		&u.CollectedAt,
		&u.ExpiresAt,
		&u.Status,
		&u.Consumed,
		&u.Disposed,
		&reason,
		&u.InventoryID,
		&group,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}

	if reason != nil {
		r := DisposalReason(*reason)
		u.DisposalReason = &r
	}
	if group != nil {
		g := Group(*group)
		u.Group = &g
	}
	return &u, nil
}

func scanUnits(rows pgx.Rows) ([]BloodUnit, error) {
	defer rows.Close()

	var result []BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CreateDonation(ctx context.Context, donorID, facilityID uuid.UUID, donatedAt time.Time) (*Donation, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO donations (id, donor_id, facility_id, donated_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, donor_id, facility_id, donated_at, created_at
	`, id, donorID, facilityID, donatedAt)

	var d Donation
	if err := row.Scan(&d.ID, &d.DonorID, &d.FacilityID, &d.DonatedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) CreateUnit(ctx context.Context, u BloodUnit) (*BloodUnit, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO blood_units
			(id, donation_id, units, volume_ml, bag_type, collected_at, expires_at,
			 status, consumed, disposed, inventory_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', false, false, $8, now(), now())
	`, u.ID, u.DonationID, u.Units, u.VolumeML, u.BagType, u.CollectedAt, u.ExpiresAt, u.InventoryID)
	if err != nil {
		return nil, fmt.Errorf("insert blood unit: %w", err)
	}

	return r.GetUnit(ctx, u.ID)
}

func (r *PgRepository) GetUnit(ctx context.Context, id uuid.UUID) (*BloodUnit, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+unitColumns+unitFrom+` WHERE u.id = $1`, id)
	return scanUnit(row)
}

func (r *PgRepository) SetTestResult(ctx context.Context, unitID uuid.UUID, outcome TestOutcome, group Group, testedAt time.Time) (*BloodUnit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE blood_units
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PENDING'
	`, unitID, TestStatus(outcome))
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUnitNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO blood_tests (id, unit_id, outcome, blood_group, tested_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), unitID, outcome, group, testedAt)
	if err != nil {
		return nil, fmt.Errorf("insert blood test: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.GetUnit(ctx, unitID)
}

func (r *PgRepository) ConsumeUnit(ctx context.Context, unitID uuid.UUID, asOf time.Time) (*BloodUnit, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blood_units
		SET consumed = true,
		    updated_at = now()
		WHERE id = $2
		  AND status = 'SAFE' AND NOT consumed AND NOT disposed AND expires_at > $1
	`, asOf, unitID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUnitNotFound
	}
	return r.GetUnit(ctx, unitID)
}

func (r *PgRepository) DisposeUnit(ctx context.Context, unitID uuid.UUID, reason DisposalReason) (*BloodUnit, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blood_units
		SET disposed = true,
		    disposal_reason = $2,
		    updated_at = now()
		WHERE id = $1
		  AND NOT consumed AND NOT disposed
	`, unitID, reason)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUnitNotFound
	}
	return r.GetUnit(ctx, unitID)
}

func (r *PgRepository) SetInventory(ctx context.Context, unitID, inventoryID uuid.UUID) (*BloodUnit, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blood_units
		SET inventory_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND NOT consumed AND NOT disposed
	`, unitID, inventoryID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUnitNotFound
	}
	return r.GetUnit(ctx, unitID)
}

func (r *PgRepository) ListExpiredActive(ctx context.Context, asOf time.Time) ([]BloodUnit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+unitColumns+unitFrom+`
		WHERE u.expires_at < $1 AND NOT u.consumed AND NOT u.disposed
		ORDER BY u.expires_at
	`, asOf)
	if err != nil {
		return nil, err
	}
	return scanUnits(rows)
}

func (r *PgRepository) CountAvailable(ctx context.Context, inventoryID uuid.UUID, filter GroupFilter, asOf time.Time) (int, int, error) {
	query := `
		SELECT COALESCE(SUM(u.units), 0), COUNT(*)` + unitFrom + `
		WHERE` + availableCond + `
		  AND u.inventory_id = $2`
	args := []any{asOf, inventoryID}

	if g, ok := filter.Group(); ok {
		query += ` AND t.blood_group = $3`
		args = append(args, g)
	}

	var units, records int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&units, &records); err != nil {
		return 0, 0, err
	}
	return units, records, nil
}

func (r *PgRepository) ListAvailable(ctx context.Context, inventoryID uuid.UUID, filter GroupFilter, asOf time.Time) ([]BloodUnit, error) {
	query := `
		SELECT` + unitColumns + unitFrom + `
		WHERE` + availableCond + `
		  AND u.inventory_id = $2`
	args := []any{asOf, inventoryID}

	if g, ok := filter.Group(); ok {
		query += ` AND t.blood_group = $3`
		args = append(args, g)
	}
	query += ` ORDER BY u.expires_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanUnits(rows)
}

func (r *PgRepository) ListExpired(ctx context.Context, inventoryID uuid.UUID, asOf time.Time) ([]BloodUnit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+unitColumns+unitFrom+`
		WHERE NOT u.disposed AND u.expires_at < $1
		  AND u.inventory_id = $2
		ORDER BY u.expires_at
	`, asOf, inventoryID)
	if err != nil {
		return nil, err
	}
	return scanUnits(rows)
}

func (r *PgRepository) ListNearingExpiry(ctx context.Context, inventoryID uuid.UUID, asOf, horizon time.Time) ([]BloodUnit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+unitColumns+unitFrom+`
		WHERE`+availableCond+`
		  AND u.inventory_id = $2
		  AND u.expires_at <= $3
		ORDER BY u.expires_at
	`, asOf, inventoryID, horizon)
	if err != nil {
		return nil, err
	}
	return scanUnits(rows)
}

func (r *PgRepository) ListByInventory(ctx context.Context, inventoryID uuid.UUID) ([]BloodUnit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+unitColumns+unitFrom+`
		WHERE u.inventory_id = $1
		ORDER BY u.collected_at
	`, inventoryID)
	if err != nil {
		return nil, err
	}
	return scanUnits(rows)
}

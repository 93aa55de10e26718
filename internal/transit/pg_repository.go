package transit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const transitColumns = `
	id, unit_id, source_bank_id, destination_id, vehicle, request_id,
	dispatched_at, delivered_at, status, created_at, updated_at`

func scanTransit(row pgx.Row) (*Transit, error) {
	var t Transit
	err := row.Scan(
		&t.ID,
		&t.UnitID,
		&t.SourceBankID,
		&t.DestinationID,
		&t.Vehicle,
		&t.RequestID,
		&t.DispatchedAt,
		&t.DeliveredAt,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransitNotFound
		}
		return nil, err
	}
	return &t, nil
}

func scanTransits(rows pgx.Rows) ([]Transit, error) {
	defer rows.Close()

	var result []Transit
	for rows.Next() {
		t, err := scanTransit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CreateTransit(ctx context.Context, t Transit) (*Transit, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO transits
			(id, unit_id, source_bank_id, destination_id, vehicle, request_id,
			 dispatched_at, delivered_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'IN_TRANSIT', now(), now())
		RETURNING`+transitColumns+`
	`, t.ID, t.UnitID, t.SourceBankID, t.DestinationID, t.Vehicle, t.RequestID, t.DispatchedAt, t.DeliveredAt)

	created, err := scanTransit(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrTransitConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetTransit(ctx context.Context, id uuid.UUID) (*Transit, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+transitColumns+` FROM transits WHERE id = $1`, id)
	return scanTransit(row)
}

func (r *PgRepository) GetActiveTransitForUnit(ctx context.Context, unitID uuid.UUID) (*Transit, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+transitColumns+`
		FROM transits
		WHERE unit_id = $1 AND status = 'IN_TRANSIT'
	`, unitID)
	return scanTransit(row)
}

func (r *PgRepository) UpdateTransitStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Transit, error) {
	query := `
		UPDATE transits
		SET status = $2,
		    updated_at = now()`
	if to == StatusDelivered {
		query += `,
		    delivered_at = now()`
	}
	query += `
		WHERE id = $1
		  AND status = $3
		RETURNING` + transitColumns

	row := r.pool.QueryRow(ctx, query, id, to, from)
	return scanTransit(row)
}

func (r *PgRepository) ListForBank(ctx context.Context, bankID uuid.UUID) ([]Transit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+transitColumns+`
		FROM transits
		WHERE source_bank_id = $1
		ORDER BY dispatched_at DESC
	`, bankID)
	if err != nil {
		return nil, err
	}
	return scanTransits(rows)
}

func (r *PgRepository) ListForHospital(ctx context.Context, hospitalID uuid.UUID) ([]Transit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+transitColumns+`
		FROM transits
		WHERE destination_id = $1
		ORDER BY dispatched_at DESC
	`, hospitalID)
	if err != nil {
		return nil, err
	}
	return scanTransits(rows)
}

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	var raw []byte
	err := row.Scan(
		&req.ID,
		&req.FacilityID,
		&req.Urgency,
		&raw,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(raw, &req.Quantities); err != nil {
		return nil, fmt.Errorf("decode request quantities: %w", err)
	}
	return &req, nil
}

func (r *PgRepository) CreateRequest(ctx context.Context, req Request) (*Request, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	raw, err := json.Marshal(req.Quantities)
	if err != nil {
		return nil, fmt.Errorf("encode request quantities: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO blood_requests (id, facility_id, urgency, quantities, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', now(), now())
		RETURNING id, facility_id, urgency, quantities, status, created_at, updated_at
	`, req.ID, req.FacilityID, req.Urgency, raw)

	return scanRequest(row)
}

func (r *PgRepository) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, facility_id, urgency, quantities, status, created_at, updated_at
		FROM blood_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *PgRepository) UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE blood_requests
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, facility_id, urgency, quantities, status, created_at, updated_at
	`, id, to, from)
	return scanRequest(row)
}

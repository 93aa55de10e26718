package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

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

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.FacilityID,
		&s.StartMinute,
		&s.EndMinute,
		&s.Token,
		&s.Capacity,
		&s.Available,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DonorID,
		&a.SlotID,
		&a.FacilityID,
		&a.ScheduledDate,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PgRepository) CreateSlots(ctx context.Context, slots []Slot) ([]Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	created := make([]Slot, 0, len(slots))
	for _, s := range slots {
		row := tx.QueryRow(ctx, `
			INSERT INTO appointment_slots
				(id, facility_id, start_minute, end_minute, token, capacity, is_available, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, now())
			RETURNING id, facility_id, start_minute, end_minute, token, capacity, is_available, created_at
		`, s.ID, s.FacilityID, s.StartMinute, s.EndMinute, s.Token, s.Capacity)

		out, err := scanSlot(row)
		if err != nil {
			return nil, fmt.Errorf("insert slot token %d: %w", s.Token, err)
		}
		created = append(created, *out)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, facility_id, start_minute, end_minute, token, capacity, is_available, created_at
		FROM appointment_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, facilityID uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, facility_id, start_minute, end_minute, token, capacity, is_available, created_at
		FROM appointment_slots
		WHERE facility_id = $1 AND is_available
		ORDER BY token
	`, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateAppointmentIfCapacity performs the capacity check and the insert
// as one statement, so two concurrent bookings cannot both slip past
// a separately-run count.
func (r *PgRepository) CreateAppointmentIfCapacity(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, donor_id, slot_id, facility_id, scheduled_date, status, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, 'PENDING', now(), now()
		WHERE (
			SELECT count(*) FROM appointments
			WHERE slot_id = $3 AND scheduled_date = $5 AND status <> 'CANCELLED'
		) < (SELECT capacity FROM appointment_slots WHERE id = $3)
		RETURNING id, donor_id, slot_id, facility_id, scheduled_date, status, created_at, updated_at
	`, a.ID, a.DonorID, a.SlotID, a.FacilityID, a.ScheduledDate)

	appt, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateBooking
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrSlotFull
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) CountActiveAppointments(ctx context.Context, slotID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE slot_id = $1 AND scheduled_date = $2 AND status <> 'CANCELLED'
	`, slotID, date).Scan(&n)
	return n, err
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, donor_id, slot_id, facility_id, scheduled_date, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, donor_id, slot_id, facility_id, scheduled_date, status, created_at, updated_at
	`, id, to, from)
	return scanAppointment(row)
}

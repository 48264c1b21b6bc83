package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/interval"
	"github.com/irodionov/slotbook/internal/model"
	"github.com/irodionov/slotbook/internal/outbox"
	"github.com/irodionov/slotbook/libs/db"
)

const bookingColumns = `id, tenant_id, staff_id, staff_service_id, customer_id,
	start_at, end_at, duration_min, price_cents, status, expires_at,
	COALESCE(comment, ''), is_active, created_at`

// BookingRepository is the database side of the booking write path. Each
// mutation commits its lifecycle event into the outbox in the same
// transaction, so an event exists exactly when its booking change does.
type BookingRepository struct {
	pool   *db.Pool
	events *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, events *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, events: events}
}

func (r *BookingRepository) Get(ctx context.Context, tenantID, id string) (model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND tenant_id = $2 AND is_active
	`, id, tenantID))
	if err != nil {
		if IsNotFound(err) {
			return model.Booking{}, fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
		}
		return model.Booking{}, err
	}
	return b, nil
}

// CreateIfFree re-checks for a conflicting booking and inserts, all inside
// one transaction holding a per-staff advisory lock. The lock serializes
// writers across server replicas; the in-process mutex in the engine only
// covers one replica.
func (r *BookingRepository) CreateIfFree(ctx context.Context, b model.Booking, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.StaffID); err != nil {
		return err
	}

	var conflict bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE tenant_id = $1
				AND staff_id = $2
				AND is_active
				AND (status = 'confirmed' OR (status = 'hold' AND expires_at > $3))
				AND start_at < $5
				AND end_at > $4
		)
	`, b.TenantID, b.StaffID, now, b.Start, b.End).Scan(&conflict)
	if err != nil {
		return err
	}
	if conflict {
		return fmt.Errorf("%w: interval %s-%s is already booked",
			booking.ErrSlotUnavailable, b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bookings
			(id, tenant_id, staff_id, staff_service_id, customer_id,
			start_at, end_at, duration_min, price_cents, status, expires_at, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, b.ID, b.TenantID, b.StaffID, b.StaffServiceID, b.CustomerID,
		b.Start, b.End, b.DurationMin, b.PriceCents, string(b.Status), b.ExpiresAt, b.Comment, b.CreatedAt); err != nil {
		return err
	}

	eventType := outbox.EventHoldCreated
	if b.Status == model.StatusConfirmed {
		eventType = outbox.EventBookingConfirmed
	}
	if err := r.insertEvent(ctx, tx, eventType, b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transition applies a status change only if the row still carries the
// expected current status, and writes the matching lifecycle event.
func (r *BookingRepository) Transition(ctx context.Context, b model.Booking, from model.Status) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $1, expires_at = $2
		WHERE id = $3 AND tenant_id = $4 AND status = $5 AND is_active
	`, string(b.Status), b.ExpiresAt, b.ID, b.TenantID, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := tx.QueryRow(ctx, `
			SELECT status FROM bookings WHERE id = $1 AND tenant_id = $2 AND is_active
		`, b.ID, b.TenantID).Scan(&current)
		if IsNotFound(err) {
			return fmt.Errorf("%w: booking %s", booking.ErrNotFound, b.ID)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: booking %s is %s, expected %s", booking.ErrState, b.ID, current, from)
	}

	if err := r.insertEvent(ctx, tx, outbox.EventForStatus(b.Status), b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *BookingRepository) BlockingBookings(ctx context.Context, tenantID, staffID string, window interval.Range, now time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1
			AND staff_id = $2
			AND is_active
			AND (status = 'confirmed' OR (status = 'hold' AND expires_at > $3))
			AND start_at < $5
			AND end_at > $4
		ORDER BY start_at
	`, tenantID, staffID, now, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *BookingRepository) ListBookings(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1
			AND is_active
			AND start_at < $3
			AND end_at > $2
		ORDER BY start_at
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *BookingRepository) insertEvent(ctx context.Context, tx pgx.Tx, eventType string, b model.Booking) error {
	evt, err := outbox.ForBooking(eventType, b)
	if err != nil {
		return err
	}
	return r.events.Insert(ctx, tx, evt)
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status string
	var expiresAt *time.Time
	if err := row.Scan(
		&b.ID, &b.TenantID, &b.StaffID, &b.StaffServiceID, &b.CustomerID,
		&b.Start, &b.End, &b.DurationMin, &b.PriceCents, &status, &expiresAt,
		&b.Comment, &b.IsActive, &b.CreatedAt,
	); err != nil {
		return model.Booking{}, err
	}
	parsed, err := model.ParseStatus(status)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = parsed
	b.ExpiresAt = expiresAt
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

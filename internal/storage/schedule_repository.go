package storage

import (
	"context"
	"fmt"

	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/interval"
	"github.com/irodionov/slotbook/internal/model"
	"github.com/irodionov/slotbook/libs/db"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) WorkingHoursFor(ctx context.Context, tenantID, staffID string, weekday int) ([]model.WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, staff_id, weekday, start_minute, end_minute,
			break_start_minute, break_end_minute, is_active
		FROM working_hours
		WHERE tenant_id = $1 AND staff_id = $2 AND weekday = $3 AND is_active
		ORDER BY start_minute
	`, tenantID, staffID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WorkingHours
	for rows.Next() {
		var wh model.WorkingHours
		if err := rows.Scan(
			&wh.ID, &wh.TenantID, &wh.StaffID, &wh.Weekday,
			&wh.StartMinute, &wh.EndMinute,
			&wh.BreakStartMinute, &wh.BreakEndMinute, &wh.IsActive,
		); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceWorkingHours swaps the template rows for one (staff, weekday) in a
// single transaction: the old rows are deactivated, the new ones inserted.
func (r *ScheduleRepository) ReplaceWorkingHours(ctx context.Context, tenantID, staffID string, weekday int, rows []model.WorkingHours) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE working_hours
		SET is_active = FALSE
		WHERE tenant_id = $1 AND staff_id = $2 AND weekday = $3
	`, tenantID, staffID, weekday); err != nil {
		return err
	}
	for _, wh := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO working_hours
				(tenant_id, staff_id, weekday, start_minute, end_minute, break_start_minute, break_end_minute, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		`, tenantID, staffID, weekday, wh.StartMinute, wh.EndMinute, wh.BreakStartMinute, wh.BreakEndMinute); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ScheduleRepository) TimeOffOverlapping(ctx context.Context, tenantID, staffID string, rng interval.Range) ([]model.TimeOff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, staff_id, start_at, end_at, COALESCE(reason, ''), is_active
		FROM time_off
		WHERE tenant_id = $1 AND staff_id = $2 AND is_active
			AND start_at < $4
			AND end_at > $3
		ORDER BY start_at
	`, tenantID, staffID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimeOff
	for rows.Next() {
		var off model.TimeOff
		if err := rows.Scan(&off.ID, &off.TenantID, &off.StaffID, &off.Start, &off.End, &off.Reason, &off.IsActive); err != nil {
			return nil, err
		}
		out = append(out, off)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepository) AddTimeOff(ctx context.Context, off model.TimeOff) (model.TimeOff, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO time_off (tenant_id, staff_id, start_at, end_at, reason, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id
	`, off.TenantID, off.StaffID, off.Start, off.End, off.Reason).Scan(&off.ID)
	if err != nil {
		return model.TimeOff{}, err
	}
	off.IsActive = true
	return off, nil
}

func (r *ScheduleRepository) DeactivateTimeOff(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_off
		SET is_active = FALSE
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: time off %s", booking.ErrNotFound, id)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"

	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/model"
	"github.com/irodionov/slotbook/libs/db"
)

type StaffRepository struct {
	pool *db.Pool
}

func NewStaffRepository(pool *db.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

func (r *StaffRepository) StaffByID(ctx context.Context, tenantID, staffID string) (model.Staff, error) {
	var st model.Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, is_active, created_at
		FROM staff
		WHERE id = $1 AND tenant_id = $2 AND is_active
	`, staffID, tenantID).Scan(&st.ID, &st.TenantID, &st.Name, &st.IsActive, &st.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Staff{}, fmt.Errorf("%w: staff %s", booking.ErrNotFound, staffID)
		}
		return model.Staff{}, err
	}
	return st, nil
}

func (r *StaffRepository) ActiveStaffService(ctx context.Context, tenantID, staffID, serviceID string) (model.StaffService, error) {
	var link model.StaffService
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, staff_id, service_id, duration_min, price_cents, is_active
		FROM staff_services
		WHERE tenant_id = $1 AND staff_id = $2 AND service_id = $3 AND is_active
	`, tenantID, staffID, serviceID).Scan(
		&link.ID, &link.TenantID, &link.StaffID, &link.ServiceID,
		&link.DurationMin, &link.PriceCents, &link.IsActive,
	)
	if err != nil {
		if IsNotFound(err) {
			return model.StaffService{}, fmt.Errorf("%w: no active service %s for staff %s", booking.ErrNotFound, serviceID, staffID)
		}
		return model.StaffService{}, err
	}
	return link, nil
}

func (r *StaffRepository) StaffServicesFor(ctx context.Context, tenantID, staffID string) ([]model.StaffService, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, staff_id, service_id, duration_min, price_cents, is_active
		FROM staff_services
		WHERE tenant_id = $1 AND staff_id = $2 AND is_active
		ORDER BY id
	`, tenantID, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.StaffService
	for rows.Next() {
		var link model.StaffService
		if err := rows.Scan(
			&link.ID, &link.TenantID, &link.StaffID, &link.ServiceID,
			&link.DurationMin, &link.PriceCents, &link.IsActive,
		); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return links, nil
}

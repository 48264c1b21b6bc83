package storage

import (
	"context"

	"github.com/irodionov/slotbook/internal/model"
	"github.com/irodionov/slotbook/libs/db"
)

type CustomerRepository struct {
	pool *db.Pool
}

func NewCustomerRepository(pool *db.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByPhoneOrCreate resolves a customer by (tenant, phone) in one upsert.
// A repeat customer supplying a new name or email gets the record refreshed;
// empty values never overwrite what is already stored.
func (r *CustomerRepository) GetByPhoneOrCreate(ctx context.Context, c model.Customer) (model.Customer, error) {
	var out model.Customer
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (tenant_id, phone, name, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, phone) DO UPDATE
		SET name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), customers.email)
		RETURNING id, tenant_id, phone, COALESCE(name, ''), COALESCE(email, ''), created_at
	`, c.TenantID, c.Phone, c.Name, c.Email).Scan(
		&out.ID, &out.TenantID, &out.Phone, &out.Name, &out.Email, &out.CreatedAt,
	)
	if err != nil {
		return model.Customer{}, err
	}
	return out, nil
}

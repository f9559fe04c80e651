package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

// TenantStore implements store.TenantStore on Postgres.
type TenantStore struct {
	db *sql.DB
}

const tenantColumns = `id, name, is_active, plan_status, subscription_end, slot_limit, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (*store.Tenant, error) {
	var t store.Tenant
	var end sql.NullTime
	if err := row.Scan(&t.ID, &t.Name, &t.IsActive, &t.PlanStatus, &end, &t.SlotLimit, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if end.Valid {
		t.SubscriptionEnd = &end.Time
	}
	return &t, nil
}

func (s *TenantStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return t, err
}

func (s *TenantStore) ListActive(ctx context.Context) ([]store.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []store.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (s *TenantStore) SetPlanStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET plan_status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

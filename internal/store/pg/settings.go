package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// SettingStore implements store.SettingStore on Postgres. A nil tenant
// addresses global scope; no implicit fallback between scopes.
type SettingStore struct {
	db *sql.DB
}

func (s *SettingStore) Get(ctx context.Context, tenantID *uuid.UUID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND key = $2`,
		tenantArg(tenantID), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *SettingStore) All(ctx context.Context, tenantID *uuid.UUID) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM settings WHERE tenant_id IS NOT DISTINCT FROM $1`,
		tenantArg(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

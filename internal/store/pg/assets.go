package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

// AssetStore implements store.AssetStore on Postgres.
type AssetStore struct {
	db *sql.DB
}

const assetColumns = `id, tenant_id, name, filename, url, is_knowledge, extracted_text, created_at`

func scanAsset(row interface{ Scan(...any) error }) (*store.Asset, error) {
	var a store.Asset
	var tid uuid.NullUUID
	err := row.Scan(&a.ID, &tid, &a.Name, &a.Filename, &a.URL, &a.IsKnowledge,
		&a.ExtractedText, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.TenantID = tenantPtr(tid)
	return &a, nil
}

func (s *AssetStore) Knowledge(ctx context.Context, tenantID *uuid.UUID, limit int) ([]store.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND is_knowledge
		ORDER BY created_at ASC LIMIT $2`,
		tenantArg(tenantID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []store.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func (s *AssetStore) ByName(ctx context.Context, tenantID *uuid.UUID, name string) (*store.Asset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND name = $2 LIMIT 1`,
		tenantArg(tenantID), name)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return a, err
}

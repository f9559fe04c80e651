package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

// SummaryStore implements store.SummaryStore on Postgres.
type SummaryStore struct {
	db *sql.DB
}

func (s *SummaryStore) Create(ctx context.Context, sum *store.Summary) error {
	if sum.ID == uuid.Nil {
		sum.ID = newID()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO summaries (id, tenant_id, contact_id, summary_text, range_start, range_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at`,
		sum.ID, tenantArg(sum.TenantID), sum.ContactID, sum.SummaryText,
		sum.RangeStart, sum.RangeEnd).Scan(&sum.CreatedAt)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	return nil
}

func (s *SummaryStore) RecentForContact(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID, limit int) ([]store.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, contact_id, summary_text, range_start, range_end, created_at
		FROM summaries
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND contact_id = $2
		ORDER BY created_at DESC LIMIT $3`,
		tenantArg(tenantID), contactID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sums []store.Summary
	for rows.Next() {
		var sum store.Summary
		var tid uuid.NullUUID
		if err := rows.Scan(&sum.ID, &tid, &sum.ContactID, &sum.SummaryText,
			&sum.RangeStart, &sum.RangeEnd, &sum.CreatedAt); err != nil {
			return nil, err
		}
		sum.TenantID = tenantPtr(tid)
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

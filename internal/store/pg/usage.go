package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

// UsageStore implements store.UsageStore on Postgres.
type UsageStore struct {
	db *sql.DB
}

func (s *UsageStore) Record(ctx context.Context, log *store.UsageLog) error {
	if log.ID == uuid.Nil {
		log.ID = newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_logs (id, tenant_id, model, prompt_tokens, completion_tokens, request_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		log.ID, tenantArg(log.TenantID), log.Model, log.PromptTokens,
		log.CompletionTokens, log.RequestType)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

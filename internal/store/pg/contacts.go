package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

// ContactStore implements store.ContactStore on Postgres.
type ContactStore struct {
	db *sql.DB
}

const contactColumns = `id, tenant_id, channel, external_id, first_name, username,
	avatar_url, bio, platform_link, bot_paused_until, last_interaction, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*store.Contact, error) {
	var c store.Contact
	var tid uuid.NullUUID
	var paused sql.NullTime
	err := row.Scan(&c.ID, &tid, &c.Channel, &c.ExternalID, &c.FirstName, &c.Username,
		&c.AvatarURL, &c.Bio, &c.PlatformLink, &paused, &c.LastInteraction, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.TenantID = tenantPtr(tid)
	if paused.Valid {
		c.BotPausedUntil = &paused.Time
	}
	return &c, nil
}

// Upsert finds or creates the contact row for (tenant, channel, externalID).
// Non-empty profile fields replace stored values; empty fields keep them.
func (s *ContactStore) Upsert(ctx context.Context, tenantID *uuid.UUID, channel, externalID string, p store.ContactProfile) (*store.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO contacts (id, tenant_id, channel, external_id, first_name, username,
			avatar_url, bio, platform_link, last_interaction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now(), now())
		ON CONFLICT (tenant_key, channel, external_id) DO UPDATE SET
			first_name       = COALESCE(NULLIF(EXCLUDED.first_name, ''), contacts.first_name),
			username         = COALESCE(NULLIF(EXCLUDED.username, ''), contacts.username),
			avatar_url       = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), contacts.avatar_url),
			bio              = COALESCE(NULLIF(EXCLUDED.bio, ''), contacts.bio),
			platform_link    = COALESCE(NULLIF(EXCLUDED.platform_link, ''), contacts.platform_link),
			last_interaction = now(),
			updated_at       = now()
		RETURNING `+contactColumns,
		newID(), tenantArg(tenantID), channel, externalID,
		p.FirstName, p.Username, p.AvatarURL, p.Bio, p.PlatformLink)

	c, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("upsert contact %s/%s: %w", channel, externalID, err)
	}
	return c, nil
}

func (s *ContactStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return c, err
}

package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

// SessionStore implements store.SessionStore on Postgres.
type SessionStore struct {
	db *sql.DB
}

const sessionColumns = `id, tenant_id, contact_id, is_active, pinned, start_time, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*store.Session, error) {
	var sess store.Session
	var tid uuid.NullUUID
	err := row.Scan(&sess.ID, &tid, &sess.ContactID, &sess.IsActive, &sess.Pinned,
		&sess.StartTime, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.TenantID = tenantPtr(tid)
	return &sess, nil
}

func (s *SessionStore) ActiveForContact(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND contact_id = $2 AND is_active
		ORDER BY start_time DESC LIMIT 1`,
		tenantArg(tenantID), contactID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sess, err
}

func (s *SessionStore) Create(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, tenant_id, contact_id, is_active, pinned, start_time, updated_at)
		VALUES ($1, $2, $3, true, false, now(), now())
		RETURNING `+sessionColumns,
		newID(), tenantArg(tenantID), contactID)
	return scanSession(row)
}

func (s *SessionStore) Close(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = false, updated_at = now() WHERE id = $1`, id)
	return err
}

func (s *SessionStore) CloseActiveForContact(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = false, updated_at = now()
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND contact_id = $2 AND is_active`,
		tenantArg(tenantID), contactID)
	return err
}

func (s *SessionStore) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, id)
	return err
}

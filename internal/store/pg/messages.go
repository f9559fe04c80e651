package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

// MessageStore implements store.MessageStore on Postgres. Buttons are
// stored as a JSONB column on the message row, not as separate rows.
type MessageStore struct {
	db *sql.DB
}

const messageColumns = `id, tenant_id, session_id, role, content, content_type, media_url, buttons, timestamp`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var m store.Message
	var tid uuid.NullUUID
	var buttons []byte
	err := row.Scan(&m.ID, &tid, &m.SessionID, &m.Role, &m.Content, &m.ContentType,
		&m.MediaURL, &buttons, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	m.TenantID = tenantPtr(tid)
	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &m.Buttons); err != nil {
			return nil, fmt.Errorf("decode message buttons: %w", err)
		}
	}
	return &m, nil
}

func (s *MessageStore) Append(ctx context.Context, msg *store.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = newID()
	}
	var buttons any
	if len(msg.Buttons) > 0 {
		raw, err := json.Marshal(msg.Buttons)
		if err != nil {
			return fmt.Errorf("encode message buttons: %w", err)
		}
		buttons = raw
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, tenant_id, session_id, role, content, content_type, media_url, buttons, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING timestamp`,
		msg.ID, tenantArg(msg.TenantID), msg.SessionID, msg.Role, msg.Content,
		msg.ContentType, msg.MediaURL, buttons).Scan(&msg.Timestamp)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *MessageStore) Last(ctx context.Context, sessionID uuid.UUID) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE session_id = $1 ORDER BY timestamp DESC, id DESC LIMIT 1`, sessionID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

// Recent returns the newest limit messages in chronological order.
func (s *MessageStore) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE session_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2
		) newest ORDER BY timestamp ASC, id ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *MessageStore) Transcript(ctx context.Context, sessionID uuid.UUID) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE session_id = $1 ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]store.Message, error) {
	var msgs []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

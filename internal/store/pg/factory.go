// Package pg implements the storage collaborator on PostgreSQL using
// database/sql over the pgx stdlib driver.
package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/google/uuid"
	"github.com/omnibothq/omnibot/internal/store"
)

// OpenDB opens a pooled Postgres connection.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by a single Postgres connection pool.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Tenants:   &TenantStore{db: db},
		Contacts:  &ContactStore{db: db},
		Sessions:  &SessionStore{db: db},
		Messages:  &MessageStore{db: db},
		Summaries: &SummaryStore{db: db},
		Settings:  &SettingStore{db: db},
		Assets:    &AssetStore{db: db},
		Usage:     &UsageStore{db: db},
	}
}

// tenantArg converts a nullable tenant ID into a driver argument.
func tenantArg(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

// tenantPtr converts a scanned nullable UUID back into a pointer.
func tenantPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	u := n.UUID
	return &u
}

func newID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

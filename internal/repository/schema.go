package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied at startup. The partial unique index on active entries is
// the storage-level backstop for the single-active-entry invariant: even if
// two starts race past the transactional guard, only one insert can commit.
const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id UUID PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	tenant_id UUID NOT NULL REFERENCES tenants(id),
	role TEXT NOT NULL DEFAULT 'member',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS projects (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants(id),
	name TEXT NOT NULL,
	archived BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS time_entries (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants(id),
	user_id UUID NOT NULL REFERENCES users(id),
	project_id UUID REFERENCES projects(id),
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK (status IN ('running', 'paused', 'stopped')),
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	last_resumed_at TIMESTAMPTZ NOT NULL,
	duration_seconds BIGINT NOT NULL DEFAULT 0 CHECK (duration_seconds >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK ((status = 'stopped') = (ended_at IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_entry_per_user
	ON time_entries (tenant_id, user_id)
	WHERE status <> 'stopped';

CREATE INDEX IF NOT EXISTS idx_entries_tenant_started
	ON time_entries (tenant_id, started_at DESC);

CREATE TABLE IF NOT EXISTS activities (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants(id),
	user_id UUID NOT NULL REFERENCES users(id),
	entry_id UUID NOT NULL REFERENCES time_entries(id),
	kind TEXT NOT NULL CHECK (kind IN ('start', 'pause', 'resume', 'stop')),
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_tenant_occurred
	ON activities (tenant_id, occurred_at DESC);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

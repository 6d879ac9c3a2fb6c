package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/yourorg/timetrack/internal/domain"
)

// PostgresActivityRepository implements domain.ActivityRepository. It only
// reads: activity rows are written inside entry transactions so the feed
// cannot drift from the entries table.
type PostgresActivityRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresActivityRepository creates a new activity repository
func NewPostgresActivityRepository(db *sql.DB, logger *slog.Logger) *PostgresActivityRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresActivityRepository{db: db, logger: logger}
}

// ListByTenant returns the tenant's most recent transitions, newest first.
func (r *PostgresActivityRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, entry_id, kind, occurred_at
		 FROM activities
		 WHERE tenant_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, classify("list activities", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ListByEntry returns the full transition history for one entry, oldest first.
func (r *PostgresActivityRepository) ListByEntry(ctx context.Context, tenantID, entryID string) ([]*domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, entry_id, kind, occurred_at
		 FROM activities
		 WHERE tenant_id = $1 AND entry_id = $2
		 ORDER BY occurred_at ASC`,
		tenantID, entryID,
	)
	if err != nil {
		return nil, classify("list entry activities", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

func scanActivities(rows *sql.Rows) ([]*domain.Activity, error) {
	var activities []*domain.Activity
	for rows.Next() {
		var act domain.Activity
		if err := rows.Scan(&act.ID, &act.TenantID, &act.UserID, &act.EntryID, &act.Kind, &act.OccurredAt); err != nil {
			return nil, classify("scan activity", err)
		}
		activities = append(activities, &act)
	}
	return activities, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/observability/metrics"
)

const entryColumns = `id, tenant_id, user_id, project_id, description, status,
	started_at, ended_at, last_resumed_at, duration_seconds, created_at, updated_at`

// PostgresEntryRepository implements domain.EntryRepository. All writes go
// through transactions that pin the per-user active row with FOR UPDATE, so
// transitions for one entry commit in a total order and the guard check plus
// insert are indivisible.
type PostgresEntryRepository struct {
	db          *sql.DB
	logger      *slog.Logger
	lockTimeout time.Duration
}

// NewPostgresEntryRepository creates a new entry repository. lockTimeout
// bounds how long a write waits for another write on the same user before
// failing with a retryable error.
func NewPostgresEntryRepository(db *sql.DB, lockTimeout time.Duration, logger *slog.Logger) *PostgresEntryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &PostgresEntryRepository{db: db, logger: logger, lockTimeout: lockTimeout}
}

// TryStart inserts a new running entry unless the user already has an active
// one. The existence check locks any active row, and the partial unique index
// closes the remaining insert race: a concurrent start that slips past the
// check fails with a unique violation and is reported as a conflict, never as
// a second active entry.
func (r *PostgresEntryRepository) TryStart(ctx context.Context, entry *domain.TimeEntry, act *domain.Activity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin start transaction", err)
	}
	defer tx.Rollback()

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return err
	}

	var activeID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM time_entries
		 WHERE tenant_id = $1 AND user_id = $2 AND status <> 'stopped'
		 FOR UPDATE`,
		entry.TenantID, entry.UserID,
	).Scan(&activeID)
	switch {
	case err == nil:
		return &domain.ConflictError{ActiveEntryID: activeID}
	case !errors.Is(err, sql.ErrNoRows):
		return classify("check active entry", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO time_entries
		 (id, tenant_id, user_id, project_id, description, status,
		  started_at, last_resumed_at, duration_seconds, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $9)`,
		entry.ID, entry.TenantID, entry.UserID, entry.ProjectID, entry.Description,
		entry.Status, entry.StartedAt, entry.LastResumedAt, entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race; resolve the winning entry id for the caller.
			return r.conflictFor(ctx, entry.TenantID, entry.UserID)
		}
		return classify("insert entry", err)
	}

	if err := insertActivity(ctx, tx, act); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit start", err)
	}
	return nil
}

// Transition loads the entry FOR UPDATE, applies fn and persists the result
// together with the transition's activity record. fn sees a snapshot; its
// error aborts the transaction with nothing applied.
func (r *PostgresEntryRepository) Transition(ctx context.Context, tenantID, entryID string, fn func(*domain.TimeEntry) (*domain.Activity, error)) (*domain.TimeEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin transition", err)
	}
	defer tx.Rollback()

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE id = $1 AND tenant_id = $2
		 FOR UPDATE`,
		entryID, tenantID,
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("load entry", err)
	}

	act, err := fn(entry)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE time_entries
		 SET status = $1, ended_at = $2, last_resumed_at = $3,
		     duration_seconds = $4, updated_at = now()
		 WHERE id = $5`,
		entry.Status, entry.EndedAt, entry.LastResumedAt, entry.DurationSeconds, entry.ID,
	)
	if err != nil {
		return nil, classify("update entry", err)
	}

	if err := insertActivity(ctx, tx, act); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit transition", err)
	}
	return entry, nil
}

// GetByID retrieves an entry within the tenant.
func (r *PostgresEntryRepository) GetByID(ctx context.Context, tenantID, entryID string) (*domain.TimeEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = $1 AND tenant_id = $2`,
		entryID, tenantID,
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get entry", err)
	}
	return entry, nil
}

// GetActive returns the user's non-stopped entry, or ErrNotFound. Finding
// more than one is a violation of the single-active-entry invariant after
// the guard already passed; it is reported loudly, never fixed up silently,
// since picking a duplicate to keep could lose tracked time.
func (r *PostgresEntryRepository) GetActive(ctx context.Context, tenantID, userID string) (*domain.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE tenant_id = $1 AND user_id = $2 AND status <> 'stopped'
		 ORDER BY started_at ASC`,
		tenantID, userID,
	)
	if err != nil {
		return nil, classify("get active entry", err)
	}
	defer rows.Close()

	var entries []*domain.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, classify("scan active entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate active entries", err)
	}

	switch len(entries) {
	case 0:
		return nil, domain.ErrNotFound
	case 1:
		return entries[0], nil
	default:
		r.logger.Error("integrity alert: multiple active entries for user",
			slog.String("tenant_id", tenantID),
			slog.String("user_id", userID),
			slog.Int("count", len(entries)),
		)
		metrics.ObserveIntegrityViolation()
		return entries[0], nil
	}
}

// List returns tenant entries, newest first, honoring the filter.
func (r *PostgresEntryRepository) List(ctx context.Context, tenantID string, filter domain.EntryFilter) ([]*domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list entries", err)
	}
	defer rows.Close()

	var entries []*domain.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, classify("scan entry", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Correct rewrites the corrigible fields of a stopped entry. Non-terminal
// entries never match the WHERE clause, so a stale caller cannot edit a
// timer that is still accruing.
func (r *PostgresEntryRepository) Correct(ctx context.Context, tenantID string, entry *domain.TimeEntry) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE time_entries
		 SET duration_seconds = $1, project_id = $2, description = $3, updated_at = now()
		 WHERE id = $4 AND tenant_id = $5 AND status = 'stopped'`,
		entry.DurationSeconds, entry.ProjectID, entry.Description, entry.ID, tenantID,
	)
	if err != nil {
		return classify("correct entry", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classify("correct entry rows", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListStaleActive returns active entries started before cutoff, across all
// tenants. Used by the reaper to stop runaway timers.
func (r *PostgresEntryRepository) ListStaleActive(ctx context.Context, cutoff time.Time) ([]*domain.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE status <> 'stopped' AND started_at < $1`,
		cutoff,
	)
	if err != nil {
		return nil, classify("list stale entries", err)
	}
	defer rows.Close()

	var entries []*domain.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, classify("scan stale entry", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountActive returns the number of non-stopped entries across all tenants.
func (r *PostgresEntryRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM time_entries WHERE status <> 'stopped'`,
	).Scan(&count)
	if err != nil {
		return 0, classify("count active entries", err)
	}
	return count, nil
}

func (r *PostgresEntryRepository) setLockTimeout(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds()))
	if err != nil {
		return classify("set lock timeout", err)
	}
	return nil
}

func (r *PostgresEntryRepository) conflictFor(ctx context.Context, tenantID, userID string) error {
	var activeID string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM time_entries
		 WHERE tenant_id = $1 AND user_id = $2 AND status <> 'stopped'`,
		tenantID, userID,
	).Scan(&activeID)
	if err != nil {
		// The winner may have already stopped; still a conflict at insert time.
		return &domain.ConflictError{}
	}
	return &domain.ConflictError{ActiveEntryID: activeID}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.TimeEntry, error) {
	var entry domain.TimeEntry
	var projectID sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.UserID,
		&projectID,
		&entry.Description,
		&entry.Status,
		&entry.StartedAt,
		&endedAt,
		&entry.LastResumedAt,
		&entry.DurationSeconds,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		entry.ProjectID = &projectID.String
	}
	if endedAt.Valid {
		entry.EndedAt = &endedAt.Time
	}
	return &entry, nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, act *domain.Activity) error {
	if act == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activities (id, tenant_id, user_id, entry_id, kind, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		act.ID, act.TenantID, act.UserID, act.EntryID, act.Kind, act.OccurredAt,
	)
	if err != nil {
		return classify("insert activity", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// classify wraps store errors, marking the retryable ones (lock wait expiry,
// serialization failures, connection trouble) as transient so request
// handlers can tell callers to retry instead of failing hard.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "55P03", // lock_not_available
			pqErr.Code == "40001", // serialization_failure
			pqErr.Code == "40P01", // deadlock_detected
			pqErr.Code.Class() == "08": // connection exceptions
			return &domain.TransientError{Err: fmt.Errorf("%s: %w", op, err)}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}

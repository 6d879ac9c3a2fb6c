package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/yourorg/timetrack/internal/domain"
)

const userColumns = `id, email, username, password_hash, tenant_id, role, created_at, updated_at, is_active`

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserRepository{db: db, logger: logger}
}

// Create creates a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, tenant_id, role, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		user.ID, user.Email, user.Username, user.PasswordHash, user.TenantID, user.Role, user.IsActive,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ValidationError{Field: "email", Reason: "already registered"}
		}
		r.logger.Error("failed to create user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		return classify("create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves an active user by email
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active = true`, email)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.TenantID,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get user", err)
	}
	return user, nil
}

// Update updates an existing user
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET email = $1, username = $2, password_hash = $3, role = $4, is_active = $5, updated_at = now()
		 WHERE id = $6
		 RETURNING updated_at`,
		user.Email, user.Username, user.PasswordHash, user.Role, user.IsActive, user.ID,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return classify("update user", err)
	}
	return nil
}

// ListByTenant lists all active users for a tenant
func (r *PostgresUserRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE tenant_id = $1 AND is_active = true
		 ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		r.logger.Error("failed to list users by tenant",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return nil, classify("list users", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user := &domain.User{}
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Username,
			&user.PasswordHash,
			&user.TenantID,
			&user.Role,
			&user.CreatedAt,
			&user.UpdatedAt,
			&user.IsActive,
		)
		if err != nil {
			return nil, classify("scan user", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// PostgresTenantRepository implements domain.TenantRepository
type PostgresTenantRepository struct {
	db *sql.DB
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db *sql.DB) *PostgresTenantRepository {
	return &PostgresTenantRepository{db: db}
}

// Create creates a new tenant
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tenants (id, name, is_active) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		tenant.ID, tenant.Name, tenant.IsActive,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ValidationError{Field: "name", Reason: "tenant name already exists"}
		}
		return classify("create tenant", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.getTenant(ctx, `SELECT id, name, is_active, created_at, updated_at FROM tenants WHERE id = $1`, id)
}

// GetByName retrieves a tenant by name
func (r *PostgresTenantRepository) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return r.getTenant(ctx, `SELECT id, name, is_active, created_at, updated_at FROM tenants WHERE name = $1`, name)
}

func (r *PostgresTenantRepository) getTenant(ctx context.Context, query string, arg any) (*domain.Tenant, error) {
	tenant := &domain.Tenant{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&tenant.ID, &tenant.Name, &tenant.IsActive, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get tenant", err)
	}
	return tenant, nil
}

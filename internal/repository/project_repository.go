package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/yourorg/timetrack/internal/domain"
)

// PostgresProjectRepository implements domain.ProjectRepository
type PostgresProjectRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProjectRepository creates a new project repository
func NewPostgresProjectRepository(db *sql.DB, logger *slog.Logger) *PostgresProjectRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProjectRepository{db: db, logger: logger}
}

// Create creates a new project
func (r *PostgresProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO projects (id, tenant_id, name, archived)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		project.ID, project.TenantID, project.Name, project.Archived,
	).Scan(&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ValidationError{Field: "name", Reason: "project name already exists"}
		}
		return classify("create project", err)
	}
	return nil
}

// GetByID retrieves a project within the tenant
func (r *PostgresProjectRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Project, error) {
	var project domain.Project
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, archived, created_at, updated_at
		 FROM projects
		 WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&project.ID, &project.TenantID, &project.Name, &project.Archived,
		&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get project", err)
	}
	return &project, nil
}

// ListByTenant lists all projects for a tenant
func (r *PostgresProjectRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, archived, created_at, updated_at
		 FROM projects
		 WHERE tenant_id = $1
		 ORDER BY name ASC`,
		tenantID,
	)
	if err != nil {
		return nil, classify("list projects", err)
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Archived, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, classify("scan project", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andy/timebill/internal/domain"
)

const projectColumns = `id, owner_id, client_id, name, description, hourly_rate, currency, is_active, created_at, updated_at`

// ProjectRepo is a SQLite implementation of ProjectRepository
type ProjectRepo struct {
	db DBTX
}

// NewProjectRepo creates a new ProjectRepo
func NewProjectRepo(q DBTX) *ProjectRepo {
	return &ProjectRepo{db: q}
}

// Create inserts a new project
func (r *ProjectRepo) Create(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}

	query := `INSERT INTO projects (` + projectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		project.ID,
		project.OwnerID,
		nullableString(project.ClientID),
		project.Name,
		project.Description,
		project.HourlyRate,
		project.Currency,
		project.IsActive,
		formatTime(project.CreatedAt),
		formatTime(project.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// GetByID retrieves an active project owned by ownerID
func (r *ProjectRepo) GetByID(ctx context.Context, ownerID, id string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ? AND owner_id = ? AND is_active = 1`
	return r.getOne(ctx, id, query, id, ownerID)
}

// GetByName retrieves an active project by exact name
func (r *ProjectRepo) GetByName(ctx context.Context, ownerID, name string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE owner_id = ? AND name = ? AND is_active = 1
		ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, name, query, ownerID, name)
}

// List retrieves the owner's active projects ordered by name
func (r *ProjectRepo) List(ctx context.Context, ownerID string) ([]*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE owner_id = ? AND is_active = 1 ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*domain.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepo) getOne(ctx context.Context, key, query string, args ...any) (*domain.Project, error) {
	project, err := scanProject(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("project", key)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

func scanProject(row rowScanner) (*domain.Project, error) {
	project := &domain.Project{}
	var clientID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&project.ID,
		&project.OwnerID,
		&clientID,
		&project.Name,
		&project.Description,
		&project.HourlyRate,
		&project.Currency,
		&project.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	project.ClientID = stringPtr(clientID)
	if project.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if project.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return project, nil
}

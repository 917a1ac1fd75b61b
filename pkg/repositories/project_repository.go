package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/database"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// ProjectRepository defines the interface for project data access.
// Every read is restricted to active projects of the given owner.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	SoftDelete(ctx context.Context, ownerID, id uuid.UUID) error
}

// projectRepository implements ProjectRepository using PostgreSQL.
type projectRepository struct{}

// NewProjectRepository creates a new project repository.
func NewProjectRepository() ProjectRepository {
	return &projectRepository{}
}

const projectColumns = `id, owner_id, name, description, domain, brand,
	competitors, keywords, settings, is_active, created_at, updated_at`

// Create inserts a new active project.
func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return err
	}

	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}

	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	project.IsActive = true

	competitors, keywords, settings, err := marshalProjectJSON(project)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO visibility_projects (id, owner_id, name, description, domain, brand,
			competitors, keywords, settings, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = scope.Conn.Exec(ctx, query,
		project.ID,
		project.OwnerID,
		project.Name,
		project.Description,
		project.Domain,
		project.Brand,
		competitors,
		keywords,
		settings,
		project.IsActive,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// Get retrieves an active project owned by ownerID.
func (r *projectRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Project, error) {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + projectColumns + `
		FROM visibility_projects
		WHERE id = $1 AND owner_id = $2 AND is_active = true`

	project, err := scanProject(scope.Conn.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// List returns the owner's active projects, newest first.
func (r *projectRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error) {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + projectColumns + `
		FROM visibility_projects
		WHERE owner_id = $1 AND is_active = true
		ORDER BY created_at DESC, id`

	rows, err := scope.Conn.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
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

// Update overwrites the editable fields of an active project.
func (r *projectRepository) Update(ctx context.Context, project *models.Project) error {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return err
	}

	project.UpdatedAt = time.Now().UTC()

	competitors, keywords, settings, err := marshalProjectJSON(project)
	if err != nil {
		return err
	}

	query := `
		UPDATE visibility_projects
		SET name = $3, description = $4, domain = $5, brand = $6,
		    competitors = $7, keywords = $8, settings = $9, updated_at = $10
		WHERE id = $1 AND owner_id = $2 AND is_active = true`

	result, err := scope.Conn.Exec(ctx, query,
		project.ID,
		project.OwnerID,
		project.Name,
		project.Description,
		project.Domain,
		project.Brand,
		competitors,
		keywords,
		settings,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// SoftDelete marks a project inactive. Its checks are kept but no longer
// appear in any query.
func (r *projectRepository) SoftDelete(ctx context.Context, ownerID, id uuid.UUID) error {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE visibility_projects
		SET is_active = false, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND is_active = true`

	result, err := scope.Conn.Exec(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func marshalProjectJSON(project *models.Project) (competitors, keywords, settings []byte, err error) {
	if project.Competitors == nil {
		project.Competitors = []models.Competitor{}
	}
	if project.Keywords == nil {
		project.Keywords = []models.ProjectKeyword{}
	}

	if competitors, err = json.Marshal(project.Competitors); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal competitors: %w", err)
	}
	if keywords, err = json.Marshal(project.Keywords); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal keywords: %w", err)
	}
	if settings, err = json.Marshal(project.Settings); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return competitors, keywords, settings, nil
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	var competitors, keywords, settings []byte

	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.Description,
		&p.Domain,
		&p.Brand,
		&competitors,
		&keywords,
		&settings,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(competitors, &p.Competitors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal competitors: %w", err)
	}
	if err := json.Unmarshal(keywords, &p.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal(settings, &p.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &p, nil
}

// Ensure projectRepository implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepository)(nil)

package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/database"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// CheckFilter narrows a project's check list.
type CheckFilter struct {
	Engine models.Engine
	// KeywordContains matches keywords case-insensitively by substring.
	KeywordContains string
	Limit           int
	Offset          int
}

// AggregationFilter selects the checks a dashboard aggregates over.
type AggregationFilter struct {
	OwnerID uuid.UUID
	// ProjectID restricts to one project when set.
	ProjectID       *uuid.UUID
	Since           time.Time
	KeywordContains string
	Status          models.CheckStatus
}

// CheckRepository provides data access for checks. Checks are reached
// through their project, so owner-facing reads join on active projects.
type CheckRepository interface {
	CreatePending(ctx context.Context, checks []*models.Check) error
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Check, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, filter CheckFilter) ([]*models.Check, error)
	CountByProject(ctx context.Context, projectID uuid.UUID, filter CheckFilter) (int, error)
	ListForAggregation(ctx context.Context, filter AggregationFilter) ([]*models.Check, error)
	Complete(ctx context.Context, id uuid.UUID, obs models.Observation) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	FailStalePending(ctx context.Context, before time.Time, message string) (int64, error)
}

type checkRepository struct{}

// NewCheckRepository creates a new check repository.
func NewCheckRepository() CheckRepository {
	return &checkRepository{}
}

var _ CheckRepository = (*checkRepository)(nil)

const checkColumns = `c.id, c.project_id, c.engine, c.keyword, c.presence, c.position,
	c.answer_snippet, c.citations_count, c.observed_urls, c.metadata, c.status,
	c.error_message, c.created_at, c.updated_at`

// CreatePending inserts a batch of pending checks in a single transaction.
// IDs and timestamps are assigned here.
func (r *checkRepository) CreatePending(ctx context.Context, checks []*models.Check) error {
	if len(checks) == 0 {
		return nil
	}

	scope, err := database.RequireScope(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range checks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.Status = models.CheckPending
		c.Presence = false
		c.Position = 0
		c.CitationsCount = 0
		c.ObservedURLs = []models.ObservedURL{}
		// A preset CreatedAt is kept so history can be backfilled.
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now

		batch.Queue(`
			INSERT INTO visibility_checks (id, project_id, engine, keyword, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.ProjectID, string(c.Engine), c.Keyword, string(c.Status), c.CreatedAt, c.UpdatedAt)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert pending checks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Get retrieves a check whose project is active and owned by ownerID.
func (r *checkRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Check, error) {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + checkColumns + `
		FROM visibility_checks c
		JOIN visibility_projects p ON p.id = c.project_id
		WHERE c.id = $1 AND p.owner_id = $2 AND p.is_active = true`

	check, err := scanCheck(scope.Conn.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get check: %w", err)
	}

	return check, nil
}

// ListByProject returns a page of a project's checks, newest first.
// Callers verify project ownership first.
func (r *checkRepository) ListByProject(ctx context.Context, projectID uuid.UUID, filter CheckFilter) ([]*models.Check, error) {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return nil, err
	}

	limit, offset := normalizePageParams(filter.Limit, filter.Offset)
	where, args := projectCheckConditions(projectID, filter)
	argIdx := len(args) + 1

	query := fmt.Sprintf(`SELECT %s
		FROM visibility_checks c
		WHERE %s
		ORDER BY c.created_at DESC, c.id
		LIMIT $%d OFFSET $%d`, checkColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	return collectChecks(rows)
}

// CountByProject counts the checks ListByProject pages over.
func (r *checkRepository) CountByProject(ctx context.Context, projectID uuid.UUID, filter CheckFilter) (int, error) {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return 0, err
	}

	where, args := projectCheckConditions(projectID, filter)

	var total int
	query := `SELECT COUNT(*) FROM visibility_checks c WHERE ` + where
	if err := scope.Conn.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count checks: %w", err)
	}
	return total, nil
}

func projectCheckConditions(projectID uuid.UUID, filter CheckFilter) (string, []any) {
	conditions := []string{"c.project_id = $1"}
	args := []any{projectID}
	argIdx := 2

	if filter.Engine != "" {
		conditions = append(conditions, fmt.Sprintf("c.engine = $%d", argIdx))
		args = append(args, string(filter.Engine))
		argIdx++
	}
	if filter.KeywordContains != "" {
		conditions = append(conditions, fmt.Sprintf("c.keyword ILIKE $%d", argIdx))
		args = append(args, containsPattern(filter.KeywordContains))
	}

	return strings.Join(conditions, " AND "), args
}

// ListForAggregation returns every check matching filter across the owner's
// active projects, oldest first.
func (r *checkRepository) ListForAggregation(ctx context.Context, filter AggregationFilter) ([]*models.Check, error) {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return nil, err
	}

	conditions := []string{"p.owner_id = $1", "p.is_active = true", "c.created_at >= $2"}
	args := []any{filter.OwnerID, filter.Since}
	argIdx := 3

	if filter.ProjectID != nil {
		conditions = append(conditions, fmt.Sprintf("c.project_id = $%d", argIdx))
		args = append(args, *filter.ProjectID)
		argIdx++
	}
	if filter.KeywordContains != "" {
		conditions = append(conditions, fmt.Sprintf("c.keyword ILIKE $%d", argIdx))
		args = append(args, containsPattern(filter.KeywordContains))
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", argIdx))
		args = append(args, string(filter.Status))
	}

	query := fmt.Sprintf(`SELECT %s
		FROM visibility_checks c
		JOIN visibility_projects p ON p.id = c.project_id
		WHERE %s
		ORDER BY c.created_at, c.id`, checkColumns, strings.Join(conditions, " AND "))

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks for aggregation: %w", err)
	}
	return collectChecks(rows)
}

// Complete records an observation and moves the check to completed in one
// statement. A check that is no longer pending is left untouched and
// apperrors.ErrAlreadyResolved is returned.
func (r *checkRepository) Complete(ctx context.Context, id uuid.UUID, obs models.Observation) error {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return err
	}

	obs.Normalize()
	if obs.ObservedURLs == nil {
		obs.ObservedURLs = []models.ObservedURL{}
	}

	urls, err := json.Marshal(obs.ObservedURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal observed urls: %w", err)
	}
	metadata, err := json.Marshal(obs.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE visibility_checks
		SET presence = $2, position = $3, answer_snippet = $4, citations_count = $5,
		    observed_urls = $6, metadata = $7, status = 'completed', error_message = '',
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	result, err := scope.Conn.Exec(ctx, query,
		id,
		obs.Presence,
		obs.Position,
		obs.AnswerSnippet,
		len(obs.ObservedURLs),
		urls,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to complete check: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrAlreadyResolved
	}
	return nil
}

// Fail moves a pending check to failed with message.
// Returns apperrors.ErrAlreadyResolved when the check is not pending.
func (r *checkRepository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE visibility_checks
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	result, err := scope.Conn.Exec(ctx, query, id, message)
	if err != nil {
		return fmt.Errorf("failed to fail check: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrAlreadyResolved
	}
	return nil
}

// FailStalePending fails every check still pending from before the cutoff
// and returns how many were changed.
func (r *checkRepository) FailStalePending(ctx context.Context, before time.Time, message string) (int64, error) {
	scope, err := database.RequireScope(ctx)
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE visibility_checks
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE status = 'pending' AND created_at < $1`

	result, err := scope.Conn.Exec(ctx, query, before, message)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale checks: %w", err)
	}
	return result.RowsAffected(), nil
}

func collectChecks(rows pgx.Rows) ([]*models.Check, error) {
	defer rows.Close()

	checks := make([]*models.Check, 0)
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		checks = append(checks, check)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checks: %w", err)
	}
	return checks, nil
}

func scanCheck(row pgx.Row) (*models.Check, error) {
	var c models.Check
	var engine, status string
	var urls, metadata []byte

	err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&engine,
		&c.Keyword,
		&c.Presence,
		&c.Position,
		&c.AnswerSnippet,
		&c.CitationsCount,
		&urls,
		&metadata,
		&status,
		&c.ErrorMessage,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Engine = models.Engine(engine)
	c.Status = models.CheckStatus(status)

	if err := json.Unmarshal(urls, &c.ObservedURLs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal observed urls: %w", err)
	}
	if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s anywhere, with LIKE
// wildcards in s taken literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func normalizePageParams(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

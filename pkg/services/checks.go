package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/repositories"
)

const (
	defaultCheckPageSize = 50
	maxCheckPageSize     = 100
)

// RunChecksRequest selects what to check. Empty engine or keyword lists fall
// back to the project's configuration.
type RunChecksRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
	Engines   []string  `json:"engines"`
	Keywords  []string  `json:"keywords"`
}

// CheckListFilter narrows and pages a project's checks. Page starts at 1.
type CheckListFilter struct {
	Engine  string
	Keyword string
	Page    int
	Limit   int
}

// CheckList is one page of checks.
type CheckList struct {
	Checks     []*models.Check   `json:"checks"`
	Pagination models.Pagination `json:"pagination"`
}

// CheckDispatcher resolves pending checks in the background.
type CheckDispatcher interface {
	Dispatch(project *models.Project, checks []*models.Check)
}

// CheckService creates checks and reads them back for their owner.
type CheckService interface {
	// Run creates one pending check per engine and keyword and hands the
	// batch to the dispatcher. The pending records are returned at once.
	Run(ctx context.Context, ownerID uuid.UUID, req RunChecksRequest) ([]*models.Check, error)
	ListByProject(ctx context.Context, ownerID, projectID uuid.UUID, filter CheckListFilter) (*CheckList, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Check, error)
}

type checkService struct {
	projects   repositories.ProjectRepository
	checks     repositories.CheckRepository
	dispatcher CheckDispatcher
	logger     *zap.Logger
}

// NewCheckService creates a new check service.
func NewCheckService(
	projects repositories.ProjectRepository,
	checks repositories.CheckRepository,
	dispatcher CheckDispatcher,
	logger *zap.Logger,
) CheckService {
	return &checkService{
		projects:   projects,
		checks:     checks,
		dispatcher: dispatcher,
		logger:     logger.Named("checks"),
	}
}

var _ CheckService = (*checkService)(nil)

func (s *checkService) Run(ctx context.Context, ownerID uuid.UUID, req RunChecksRequest) ([]*models.Check, error) {
	project, err := s.projects.Get(ctx, ownerID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	engines := project.DefaultCheckEngines()
	if len(req.Engines) > 0 {
		engines, err = models.ParseEngines(req.Engines)
		if err != nil {
			return nil, validationError("%s", err.Error())
		}
	}

	keywords := project.KeywordList()
	if len(req.Keywords) > 0 {
		keywords = req.Keywords
	}
	keywords = normalizeKeywordList(keywords)
	if len(keywords) == 0 {
		return nil, validationError("at least one keyword is required")
	}
	if len(keywords) > maxKeywords {
		return nil, validationError("at most %d keywords can be checked at once", maxKeywords)
	}

	checks := make([]*models.Check, 0, len(engines)*len(keywords))
	for _, engine := range engines {
		for _, keyword := range keywords {
			checks = append(checks, &models.Check{
				ProjectID: project.ID,
				Engine:    engine,
				Keyword:   keyword,
			})
		}
	}

	if err := s.checks.CreatePending(ctx, checks); err != nil {
		return nil, fmt.Errorf("failed to create checks: %w", err)
	}

	s.logger.Info("Checks initiated",
		zap.String("project_id", project.ID.String()),
		zap.Int("engines", len(engines)),
		zap.Int("keywords", len(keywords)),
		zap.Int("checks", len(checks)))

	s.dispatcher.Dispatch(project, checks)
	return checks, nil
}

func (s *checkService) ListByProject(ctx context.Context, ownerID, projectID uuid.UUID, filter CheckListFilter) (*CheckList, error) {
	if _, err := s.projects.Get(ctx, ownerID, projectID); err != nil {
		return nil, err
	}

	repoFilter := repositories.CheckFilter{KeywordContains: models.NormalizeKeyword(filter.Keyword)}
	if filter.Engine != "" {
		engine, err := models.ParseEngine(filter.Engine)
		if err != nil {
			return nil, validationError("%s", err.Error())
		}
		repoFilter.Engine = engine
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = defaultCheckPageSize
	}
	if limit > maxCheckPageSize {
		limit = maxCheckPageSize
	}
	repoFilter.Limit = limit
	repoFilter.Offset = (page - 1) * limit

	total, err := s.checks.CountByProject(ctx, projectID, repoFilter)
	if err != nil {
		return nil, err
	}

	checks, err := s.checks.ListByProject(ctx, projectID, repoFilter)
	if err != nil {
		return nil, err
	}

	return &CheckList{
		Checks:     checks,
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}

func (s *checkService) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Check, error) {
	return s.checks.Get(ctx, ownerID, id)
}

// normalizeKeywordList normalizes keywords and drops empties and repeats.
func normalizeKeywordList(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = models.NormalizeKeyword(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

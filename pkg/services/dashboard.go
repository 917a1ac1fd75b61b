package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/cache"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/repositories"
	"github.com/ekaya-inc/ekaya-visibility/pkg/visibility"
)

const (
	defaultDashboardDays = 30
	maxDashboardDays     = 365
)

// DashboardQuery selects the checks a dashboard aggregates. A nil ProjectID
// covers every active project of the owner. Days of 0 means the default.
type DashboardQuery struct {
	ProjectID *uuid.UUID
	Days      int
}

// OverviewCache stores computed overviews per owner.
type OverviewCache interface {
	Get(ctx context.Context, ownerID uuid.UUID, name string, dest any) bool
	Set(ctx context.Context, ownerID uuid.UUID, name string, value any)
}

// DashboardService computes visibility metrics over an owner's checks.
// Only completed checks are aggregated.
type DashboardService interface {
	Overview(ctx context.Context, ownerID uuid.UUID, q DashboardQuery) (*models.Overview, error)
	KeywordAnalysis(ctx context.Context, ownerID uuid.UUID, keyword string, q DashboardQuery) (*models.KeywordAnalysis, error)
	EngineComparison(ctx context.Context, ownerID uuid.UUID, q DashboardQuery) (*models.EngineComparison, error)
}

type dashboardService struct {
	projects repositories.ProjectRepository
	checks   repositories.CheckRepository
	cache    OverviewCache
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService creates a dashboard service. overviews may be nil.
func NewDashboardService(
	projects repositories.ProjectRepository,
	checks repositories.CheckRepository,
	overviews OverviewCache,
	logger *zap.Logger,
) DashboardService {
	return &dashboardService{
		projects: projects,
		checks:   checks,
		cache:    overviews,
		logger:   logger.Named("dashboard"),
		now:      time.Now,
	}
}

var _ DashboardService = (*dashboardService)(nil)

func (s *dashboardService) Overview(ctx context.Context, ownerID uuid.UUID, q DashboardQuery) (*models.Overview, error) {
	days, err := s.resolveQuery(ctx, ownerID, q)
	if err != nil {
		return nil, err
	}

	// Only the summary is cached; the period always reflects the current clock.
	period := s.period(days)
	key := cache.OverviewKey(q.ProjectID, days)
	if s.cache != nil {
		var cached models.Summary
		if s.cache.Get(ctx, ownerID, key, &cached) {
			s.logger.Debug("Overview served from cache", zap.String("owner_id", ownerID.String()))
			return &models.Overview{Summary: cached, Period: period.Period}, nil
		}
	}

	checks, err := s.load(ctx, ownerID, q.ProjectID, period, "")
	if err != nil {
		return nil, err
	}

	summary := visibility.Summarize(checks)
	if s.cache != nil {
		s.cache.Set(ctx, ownerID, key, summary)
	}
	return &models.Overview{Summary: summary, Period: period.Period}, nil
}

func (s *dashboardService) KeywordAnalysis(ctx context.Context, ownerID uuid.UUID, keyword string, q DashboardQuery) (*models.KeywordAnalysis, error) {
	keyword = models.NormalizeKeyword(keyword)
	if keyword == "" {
		return nil, validationError("keyword is required")
	}

	days, err := s.resolveQuery(ctx, ownerID, q)
	if err != nil {
		return nil, err
	}

	period := s.period(days)
	checks, err := s.load(ctx, ownerID, q.ProjectID, period, keyword)
	if err != nil {
		return nil, err
	}

	return &models.KeywordAnalysis{
		Keyword: keyword,
		Engines: visibility.KeywordEngineSeries(checks),
		Period:  period.Period,
	}, nil
}

func (s *dashboardService) EngineComparison(ctx context.Context, ownerID uuid.UUID, q DashboardQuery) (*models.EngineComparison, error) {
	days, err := s.resolveQuery(ctx, ownerID, q)
	if err != nil {
		return nil, err
	}

	period := s.period(days)
	checks, err := s.load(ctx, ownerID, q.ProjectID, period, "")
	if err != nil {
		return nil, err
	}

	return &models.EngineComparison{
		Engines: visibility.CompareEngines(checks),
		Period:  period.Period,
	}, nil
}

// resolveQuery applies the day default and verifies project ownership.
func (s *dashboardService) resolveQuery(ctx context.Context, ownerID uuid.UUID, q DashboardQuery) (int, error) {
	days := q.Days
	if days == 0 {
		days = defaultDashboardDays
	}
	if days < 1 || days > maxDashboardDays {
		return 0, validationError("days must be between 1 and %d", maxDashboardDays)
	}

	if q.ProjectID != nil {
		if _, err := s.projects.Get(ctx, ownerID, *q.ProjectID); err != nil {
			return 0, err
		}
	}
	return days, nil
}

type window struct {
	models.Period
	since time.Time
}

func (s *dashboardService) period(days int) window {
	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)
	return window{
		Period: models.Period{
			Days:      days,
			StartDate: start.Format(time.RFC3339),
			EndDate:   end.Format(time.RFC3339),
		},
		since: start,
	}
}

func (s *dashboardService) load(ctx context.Context, ownerID uuid.UUID, projectID *uuid.UUID, w window, keyword string) ([]*models.Check, error) {
	return s.checks.ListForAggregation(ctx, repositories.AggregationFilter{
		OwnerID:         ownerID,
		ProjectID:       projectID,
		Since:           w.since,
		KeywordContains: keyword,
		Status:          models.CheckCompleted,
	})
}

package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/engines"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/repositories"
)

// mockProjectRepository keeps projects in memory.
type mockProjectRepository struct {
	projects  map[uuid.UUID]*models.Project
	createErr error
	updateErr error

	created *models.Project
	updated *models.Project
}

func newMockProjectRepository(projects ...*models.Project) *mockProjectRepository {
	m := &mockProjectRepository{projects: make(map[uuid.UUID]*models.Project)}
	for _, p := range projects {
		m.projects[p.ID] = p
	}
	return m
}

func (m *mockProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if m.createErr != nil {
		return m.createErr
	}
	project.ID = uuid.New()
	project.IsActive = true
	project.CreatedAt = time.Now()
	project.UpdatedAt = project.CreatedAt
	m.created = project
	m.projects[project.ID] = project
	return nil
}

func (m *mockProjectRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Project, error) {
	p, ok := m.projects[id]
	if !ok || p.OwnerID != ownerID || !p.IsActive {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error) {
	var out []*models.Project
	for _, p := range m.projects {
		if p.OwnerID == ownerID && p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockProjectRepository) Update(ctx context.Context, project *models.Project) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = project
	m.projects[project.ID] = project
	return nil
}

func (m *mockProjectRepository) SoftDelete(ctx context.Context, ownerID, id uuid.UUID) error {
	p, ok := m.projects[id]
	if !ok || p.OwnerID != ownerID || !p.IsActive {
		return apperrors.ErrNotFound
	}
	p.IsActive = false
	return nil
}

// mockCheckRepository keeps checks in memory and is safe for concurrent use.
type mockCheckRepository struct {
	mu        sync.Mutex
	checks    map[uuid.UUID]*models.Check
	order     []uuid.UUID
	createErr error

	listFilter   repositories.CheckFilter
	aggFilter    repositories.AggregationFilter
	aggregated   []*models.Check
	staleBefore  time.Time
	staleMessage string
	staleCount   int64
}

func newMockCheckRepository() *mockCheckRepository {
	return &mockCheckRepository{checks: make(map[uuid.UUID]*models.Check)}
}

func (m *mockCheckRepository) CreatePending(ctx context.Context, checks []*models.Check) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, c := range checks {
		c.ID = uuid.New()
		c.Status = models.CheckPending
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		cp := *c
		m.checks[c.ID] = &cp
		m.order = append(m.order, c.ID)
	}
	return nil
}

func (m *mockCheckRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCheckRepository) ListByProject(ctx context.Context, projectID uuid.UUID, filter repositories.CheckFilter) ([]*models.Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFilter = filter
	var out []*models.Check
	for _, id := range m.order {
		if c := m.checks[id]; c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockCheckRepository) CountByProject(ctx context.Context, projectID uuid.UUID, filter repositories.CheckFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.checks {
		if c.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func (m *mockCheckRepository) ListForAggregation(ctx context.Context, filter repositories.AggregationFilter) ([]*models.Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggFilter = filter
	return m.aggregated, nil
}

func (m *mockCheckRepository) Complete(ctx context.Context, id uuid.UUID, obs models.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if c.Status != models.CheckPending {
		return apperrors.ErrAlreadyResolved
	}
	obs.Normalize()
	c.Status = models.CheckCompleted
	c.Presence = obs.Presence
	c.Position = obs.Position
	c.AnswerSnippet = obs.AnswerSnippet
	c.ObservedURLs = obs.ObservedURLs
	c.CitationsCount = len(obs.ObservedURLs)
	c.Metadata = obs.Metadata
	return nil
}

func (m *mockCheckRepository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if c.Status != models.CheckPending {
		return apperrors.ErrAlreadyResolved
	}
	c.Status = models.CheckFailed
	c.ErrorMessage = message
	return nil
}

func (m *mockCheckRepository) FailStalePending(ctx context.Context, before time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleBefore = before
	m.staleMessage = message
	return m.staleCount, nil
}

// snapshot returns copies of every stored check in creation order.
func (m *mockCheckRepository) snapshot() []models.Check {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Check, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.checks[id])
	}
	return out
}

// mockDispatcher records dispatched batches.
type mockDispatcher struct {
	mu      sync.Mutex
	project *models.Project
	checks  []*models.Check
	calls   int
}

func (m *mockDispatcher) Dispatch(project *models.Project, checks []*models.Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.project = project
	m.checks = checks
	m.calls++
}

// mockScopeProvider hands back the context unchanged.
type mockScopeProvider struct {
	mu     sync.Mutex
	opened int
	closed int
}

func (m *mockScopeProvider) WithOwnerScope(ctx context.Context, ownerID uuid.UUID) (context.Context, func(), error) {
	return m.WithSystemScope(ctx)
}

func (m *mockScopeProvider) WithSystemScope(ctx context.Context) (context.Context, func(), error) {
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
	return ctx, func() {
		m.mu.Lock()
		m.closed++
		m.mu.Unlock()
	}, nil
}

// mockQuerierSource serves queriers by engine.
type mockQuerierSource map[models.Engine]engines.Querier

func (m mockQuerierSource) Get(engine models.Engine) (engines.Querier, error) {
	q, ok := m[engine]
	if !ok {
		return nil, apperrors.ErrEngineNotConfigured
	}
	return q, nil
}

// mockInvalidator records invalidated owners.
type mockInvalidator struct {
	mu     sync.Mutex
	owners []uuid.UUID
}

func (m *mockInvalidator) InvalidateOwner(ctx context.Context, ownerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners = append(m.owners, ownerID)
}

func (m *mockInvalidator) invalidated() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.owners...)
}

func testProject(ownerID uuid.UUID) *models.Project {
	return &models.Project{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    "Acme",
		Domain:  "acme.com",
		Brand:   "Acme",
		Competitors: []models.Competitor{
			{Name: "Globex", Domain: "globex.com"},
		},
		Keywords: []models.ProjectKeyword{
			{Keyword: "best crm", Category: models.KeywordPrimary},
			{Keyword: "crm for startups", Category: models.KeywordSecondary},
		},
		Settings: models.ProjectSettings{
			CheckFrequency: models.FrequencyDaily,
			Engines:        []models.Engine{models.EngineChatGPT, models.EngineGemini},
		},
		IsActive:  true,
		CreatedAt: time.Now(),
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-visibility/pkg/auth"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/services"
)

// mockProjectService records calls and returns configured values.
type mockProjectService struct {
	projects []*models.Project
	project  *models.Project
	err      error

	ownerID   uuid.UUID
	projectID uuid.UUID
	createReq services.CreateProjectRequest
	updateReq services.UpdateProjectRequest
}

func (m *mockProjectService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error) {
	m.ownerID = ownerID
	return m.projects, m.err
}

func (m *mockProjectService) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Project, error) {
	m.ownerID, m.projectID = ownerID, id
	return m.project, m.err
}

func (m *mockProjectService) Create(ctx context.Context, ownerID uuid.UUID, req services.CreateProjectRequest) (*models.Project, error) {
	m.ownerID, m.createReq = ownerID, req
	return m.project, m.err
}

func (m *mockProjectService) Update(ctx context.Context, ownerID, id uuid.UUID, req services.UpdateProjectRequest) (*models.Project, error) {
	m.ownerID, m.projectID, m.updateReq = ownerID, id, req
	return m.project, m.err
}

func (m *mockProjectService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	m.ownerID, m.projectID = ownerID, id
	return m.err
}

// mockCheckService records calls and returns configured values.
type mockCheckService struct {
	checks []*models.Check
	check  *models.Check
	list   *services.CheckList
	err    error

	ownerID uuid.UUID
	runReq  services.RunChecksRequest
	filter  services.CheckListFilter
}

func (m *mockCheckService) Run(ctx context.Context, ownerID uuid.UUID, req services.RunChecksRequest) ([]*models.Check, error) {
	m.ownerID, m.runReq = ownerID, req
	return m.checks, m.err
}

func (m *mockCheckService) ListByProject(ctx context.Context, ownerID, projectID uuid.UUID, filter services.CheckListFilter) (*services.CheckList, error) {
	m.ownerID, m.filter = ownerID, filter
	return m.list, m.err
}

func (m *mockCheckService) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Check, error) {
	m.ownerID = ownerID
	return m.check, m.err
}

// mockDashboardService records the last query.
type mockDashboardService struct {
	overview   *models.Overview
	analysis   *models.KeywordAnalysis
	comparison *models.EngineComparison
	err        error

	ownerID uuid.UUID
	keyword string
	query   services.DashboardQuery
}

func (m *mockDashboardService) Overview(ctx context.Context, ownerID uuid.UUID, q services.DashboardQuery) (*models.Overview, error) {
	m.ownerID, m.query = ownerID, q
	return m.overview, m.err
}

func (m *mockDashboardService) KeywordAnalysis(ctx context.Context, ownerID uuid.UUID, keyword string, q services.DashboardQuery) (*models.KeywordAnalysis, error) {
	m.ownerID, m.keyword, m.query = ownerID, keyword, q
	return m.analysis, m.err
}

func (m *mockDashboardService) EngineComparison(ctx context.Context, ownerID uuid.UUID, q services.DashboardQuery) (*models.EngineComparison, error) {
	m.ownerID, m.query = ownerID, q
	return m.comparison, m.err
}

// mockAuthService accepts "Bearer <owner uuid>" and rejects anything else.
type mockAuthService struct{}

func (mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		return nil, "", errors.New("missing token")
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: token}}, token, nil
}

func (mockAuthService) RequireOwner(claims *auth.Claims) (uuid.UUID, error) {
	return uuid.Parse(claims.Subject)
}

// passthroughOwner stands in for the database owner-scope middleware.
func passthroughOwner(next http.HandlerFunc) http.HandlerFunc { return next }

// ownerRequest builds a request whose context carries ownerID's claims.
func ownerRequest(method, target string, body string, ownerID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: ownerID.String()}}
	return req.WithContext(auth.WithClaims(req.Context(), claims, "test-token"))
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/auth"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

func decodeAPI(t *testing.T, rec *httptest.ResponseRecorder, data any) ApiResponse {
	t.Helper()
	var raw struct {
		ApiResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.ApiResponse
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestProjectsHandler_List(t *testing.T) {
	ownerID := uuid.New()
	svc := &mockProjectService{projects: []*models.Project{{ID: uuid.New(), Name: "Acme"}}}
	h := NewProjectsHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	h.List(rec, ownerRequest(http.MethodGet, "/api/projects", "", ownerID))

	require.Equal(t, http.StatusOK, rec.Code)
	var list ProjectListResponse
	resp := decodeAPI(t, rec, &list)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "Acme", list.Projects[0].Name)
	assert.Equal(t, ownerID, svc.ownerID)
}

func TestProjectsHandler_List_EmptyIsArray(t *testing.T) {
	h := NewProjectsHandler(&mockProjectService{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.List(rec, ownerRequest(http.MethodGet, "/api/projects", "", uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"projects":[]`)
}

func TestProjectsHandler_Create(t *testing.T) {
	ownerID := uuid.New()
	svc := &mockProjectService{project: &models.Project{ID: uuid.New(), Name: "Acme"}}
	h := NewProjectsHandler(svc, zap.NewNop())

	body := `{"name":"Acme","domain":"acme.com","brand":"Acme","keywords":[{"keyword":"best crm","target_position":3}]}`
	rec := httptest.NewRecorder()
	h.Create(rec, ownerRequest(http.MethodPost, "/api/projects", body, ownerID))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "acme.com", svc.createReq.Domain)
	require.Len(t, svc.createReq.Keywords, 1)
	require.NotNil(t, svc.createReq.Keywords[0].TargetPosition)
	assert.Equal(t, 3, *svc.createReq.Keywords[0].TargetPosition)
}

func TestProjectsHandler_Create_InvalidJSON(t *testing.T) {
	svc := &mockProjectService{}
	h := NewProjectsHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Create(rec, ownerRequest(http.MethodPost, "/api/projects", `{"name":`, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec)["error"])
}

func TestProjectsHandler_Create_ValidationError(t *testing.T) {
	svc := &mockProjectService{err: fmt.Errorf("%w: brand must be 1-100 characters", apperrors.ErrValidation)}
	h := NewProjectsHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Create(rec, ownerRequest(http.MethodPost, "/api/projects", `{}`, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, "brand must be 1-100 characters", body["message"])
}

func TestProjectsHandler_Get_NotFound(t *testing.T) {
	svc := &mockProjectService{err: apperrors.ErrNotFound}
	h := NewProjectsHandler(svc, zap.NewNop())
	projectID := uuid.New()

	req := ownerRequest(http.MethodGet, "/api/projects/"+projectID.String(), "", uuid.New())
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec)["error"])
	assert.Equal(t, projectID, svc.projectID)
}

func TestProjectsHandler_Get_InvalidID(t *testing.T) {
	h := NewProjectsHandler(&mockProjectService{}, zap.NewNop())

	req := ownerRequest(http.MethodGet, "/api/projects/abc", "", uuid.New())
	req.SetPathValue("pid", "abc")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_project_id", decodeError(t, rec)["error"])
}

func TestProjectsHandler_Update_PartialBody(t *testing.T) {
	projectID := uuid.New()
	svc := &mockProjectService{project: &models.Project{ID: projectID}}
	h := NewProjectsHandler(svc, zap.NewNop())

	req := ownerRequest(http.MethodPut, "/api/projects/"+projectID.String(), `{"brand":"Acme Inc"}`, uuid.New())
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updateReq.Brand)
	assert.Equal(t, "Acme Inc", *svc.updateReq.Brand)
	assert.Nil(t, svc.updateReq.Name)
	assert.Nil(t, svc.updateReq.Keywords)
}

func TestProjectsHandler_Delete(t *testing.T) {
	projectID := uuid.New()
	svc := &mockProjectService{}
	h := NewProjectsHandler(svc, zap.NewNop())

	req := ownerRequest(http.MethodDelete, "/api/projects/"+projectID.String(), "", uuid.New())
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAPI(t, rec, nil)
	assert.True(t, resp.Success)
	assert.Equal(t, projectID, svc.projectID)
}

func TestProjectsHandler_InternalErrorHidesDetail(t *testing.T) {
	svc := &mockProjectService{err: errors.New("pq: password=hunter2 rejected")}
	h := NewProjectsHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	h.List(rec, ownerRequest(http.MethodGet, "/api/projects", "", uuid.New()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestProjectsHandler_Routes_RequireAuth(t *testing.T) {
	svc := &mockProjectService{projects: []*models.Project{}}
	mux := http.NewServeMux()
	NewProjectsHandler(svc, zap.NewNop()).RegisterRoutes(mux, auth.NewMiddleware(mockAuthService{}, zap.NewNop()), passthroughOwner)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ownerID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+ownerID.String())
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ownerID, svc.ownerID)
}

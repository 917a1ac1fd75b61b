package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/auth"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/services"
)

// ProjectListResponse for GET /api/projects
type ProjectListResponse struct {
	Projects []*models.Project `json:"projects"`
	Total    int               `json:"total"`
}

// ProjectsHandler handles project CRUD requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/projects", authMiddleware.RequireAuth(ownerMiddleware(h.List)))
	mux.HandleFunc("POST /api/projects", authMiddleware.RequireAuth(ownerMiddleware(h.Create)))
	mux.HandleFunc("GET /api/projects/{pid}", authMiddleware.RequireAuth(ownerMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/projects/{pid}", authMiddleware.RequireAuth(ownerMiddleware(h.Update)))
	mux.HandleFunc("DELETE /api/projects/{pid}", authMiddleware.RequireAuth(ownerMiddleware(h.Delete)))
}

// List handles GET /api/projects
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	projects, err := h.projectService.List(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, err, "List projects", h.logger)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}

	writeData(w, http.StatusOK, ProjectListResponse{Projects: projects, Total: len(projects)}, h.logger)
}

// Create handles POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateProjectRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	project, err := h.projectService.Create(r.Context(), ownerID, req)
	if err != nil {
		writeServiceError(w, err, "Create project", h.logger)
		return
	}

	writeData(w, http.StatusCreated, project, h.logger)
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Get(r.Context(), ownerID, projectID)
	if err != nil {
		writeServiceError(w, err, "Get project", h.logger)
		return
	}

	writeData(w, http.StatusOK, project, h.logger)
}

// Update handles PUT /api/projects/{pid}
// Fields omitted from the body keep their stored values.
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.UpdateProjectRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	project, err := h.projectService.Update(r.Context(), ownerID, projectID, req)
	if err != nil {
		writeServiceError(w, err, "Update project", h.logger)
		return
	}

	writeData(w, http.StatusOK, project, h.logger)
}

// Delete handles DELETE /api/projects/{pid}
// The project is deactivated; its checks are kept.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.projectService.Delete(r.Context(), ownerID, projectID); err != nil {
		writeServiceError(w, err, "Delete project", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Project deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/auth"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
	"github.com/ekaya-inc/ekaya-visibility/pkg/services"
)

// RunChecksResponse for POST /api/checks/run
type RunChecksResponse struct {
	Checks []*models.Check `json:"checks"`
	Total  int             `json:"total"`
}

// ChecksHandler starts checks and reads their results.
type ChecksHandler struct {
	checkService services.CheckService
	logger       *zap.Logger
}

// NewChecksHandler creates a new checks handler.
func NewChecksHandler(checkService services.CheckService, logger *zap.Logger) *ChecksHandler {
	return &ChecksHandler{
		checkService: checkService,
		logger:       logger,
	}
}

// RegisterRoutes registers the checks handler's routes on the given mux.
func (h *ChecksHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("POST /api/checks/run", authMiddleware.RequireAuth(ownerMiddleware(h.Run)))
	mux.HandleFunc("GET /api/checks/project/{pid}", authMiddleware.RequireAuth(ownerMiddleware(h.ListByProject)))
	mux.HandleFunc("GET /api/checks/{cid}", authMiddleware.RequireAuth(ownerMiddleware(h.Get)))
}

// Run handles POST /api/checks/run
// Responds 202 with the pending checks; results arrive asynchronously.
func (h *ChecksHandler) Run(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	var req services.RunChecksRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	checks, err := h.checkService.Run(r.Context(), ownerID, req)
	if err != nil {
		writeServiceError(w, err, "Run checks", h.logger)
		return
	}

	writeData(w, http.StatusAccepted, RunChecksResponse{Checks: checks, Total: len(checks)}, h.logger)
}

// ListByProject handles GET /api/checks/project/{pid}?engine=&keyword=&page=&limit=
func (h *ChecksHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	page, ok := parseIntQuery(w, r, "page", h.logger)
	if !ok {
		return
	}
	limit, ok := parseIntQuery(w, r, "limit", h.logger)
	if !ok {
		return
	}

	query := r.URL.Query()
	list, err := h.checkService.ListByProject(r.Context(), ownerID, projectID, services.CheckListFilter{
		Engine:  query.Get("engine"),
		Keyword: query.Get("keyword"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		writeServiceError(w, err, "List checks", h.logger)
		return
	}
	if list.Checks == nil {
		list.Checks = []*models.Check{}
	}

	writeData(w, http.StatusOK, list, h.logger)
}

// Get handles GET /api/checks/{cid}
func (h *ChecksHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}
	checkID, ok := ParseCheckID(w, r, h.logger)
	if !ok {
		return
	}

	check, err := h.checkService.Get(r.Context(), ownerID, checkID)
	if err != nil {
		writeServiceError(w, err, "Get check", h.logger)
		return
	}

	writeData(w, http.StatusOK, check, h.logger)
}

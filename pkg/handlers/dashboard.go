package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/auth"
	"github.com/ekaya-inc/ekaya-visibility/pkg/services"
)

// DashboardHandler serves aggregated visibility metrics.
type DashboardHandler struct {
	dashboardService services.DashboardService
	logger           *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(dashboardService services.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		logger:           logger,
	}
}

// RegisterRoutes registers the dashboard handler's routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/dashboard/overview", authMiddleware.RequireAuth(ownerMiddleware(h.Overview)))
	mux.HandleFunc("GET /api/dashboard/keyword/{keyword}", authMiddleware.RequireAuth(ownerMiddleware(h.KeywordAnalysis)))
	mux.HandleFunc("GET /api/dashboard/engine-comparison", authMiddleware.RequireAuth(ownerMiddleware(h.EngineComparison)))
}

// Overview handles GET /api/dashboard/overview?projectId=&days=
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	overview, err := h.dashboardService.Overview(r.Context(), ownerID, q)
	if err != nil {
		writeServiceError(w, err, "Dashboard overview", h.logger)
		return
	}

	writeData(w, http.StatusOK, overview, h.logger)
}

// KeywordAnalysis handles GET /api/dashboard/keyword/{keyword}?projectId=&days=
func (h *DashboardHandler) KeywordAnalysis(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	analysis, err := h.dashboardService.KeywordAnalysis(r.Context(), ownerID, r.PathValue("keyword"), q)
	if err != nil {
		writeServiceError(w, err, "Keyword analysis", h.logger)
		return
	}

	writeData(w, http.StatusOK, analysis, h.logger)
}

// EngineComparison handles GET /api/dashboard/engine-comparison?projectId=&days=
func (h *DashboardHandler) EngineComparison(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	comparison, err := h.dashboardService.EngineComparison(r.Context(), ownerID, q)
	if err != nil {
		writeServiceError(w, err, "Engine comparison", h.logger)
		return
	}

	writeData(w, http.StatusOK, comparison, h.logger)
}

// parseQuery reads projectId and days. An explicit days value must be a
// positive integer; the upper bound is checked by the service.
func (h *DashboardHandler) parseQuery(w http.ResponseWriter, r *http.Request) (services.DashboardQuery, bool) {
	projectID, ok := parseOptionalProjectQuery(w, r, h.logger)
	if !ok {
		return services.DashboardQuery{}, false
	}

	var days int
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "validation_error", "days must be between 1 and 365", h.logger)
			return services.DashboardQuery{}, false
		}
		days = n
	}

	return services.DashboardQuery{ProjectID: projectID, Days: days}, true
}

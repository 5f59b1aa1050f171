package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/security/validation"
	"github.com/asg67/finmanager/backend/src/services"
	"github.com/asg67/finmanager/backend/src/utils"
)

type AnalyticsHandler struct {
	analytics services.AnalyticsService
}

func NewAnalyticsHandler(analytics services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// GetSummary returns cash-flow aggregates for the entity. The range defaults
// to the last six months when no dates are given.
func (h *AnalyticsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}

	q := r.URL.Query()
	from := q.Get("from")
	to := q.Get("to")
	if from == "" && to == "" {
		now := time.Now()
		from = now.AddDate(0, -6, 0).Format("2006-01-02")
		to = now.Format("2006-01-02")
	} else {
		fromT, toT, err := validation.ValidateDateRange(from, to)
		if err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		from = fromT.Format("2006-01-02")
		to = toT.Format("2006-01-02")
	}

	summary, err := h.analytics.GetSummary(entity.ID, from, to)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to build summary", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to build summary", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, summary, http.StatusOK)
}

// parseRange extracts the from/to query params, defaulting to the last six
// months. Returns ok=false after writing the error response.
func parseRange(w http.ResponseWriter, r *http.Request) (from, to string, ok bool) {
	from = r.URL.Query().Get("from")
	to = r.URL.Query().Get("to")
	if from == "" && to == "" {
		now := time.Now()
		return now.AddDate(0, -6, 0).Format("2006-01-02"), now.Format("2006-01-02"), true
	}
	fromT, toT, err := validation.ValidateDateRange(from, to)
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return fromT.Format("2006-01-02"), toT.Format("2006-01-02"), true
}

func (h *AnalyticsHandler) GetByCategory(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	categories, err := h.analytics.GetByCategory(entity.ID, from, to)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to build category breakdown", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to build category breakdown", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, categories, http.StatusOK)
}

func (h *AnalyticsHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	timeline, err := h.analytics.GetTimeline(entity.ID, from, to)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to build timeline", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to build timeline", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, timeline, http.StatusOK)
}

func (h *AnalyticsHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 50 {
		limit = 10
	}
	recent, err := h.analytics.GetRecent(entity.ID, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load recent transactions", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to load recent transactions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, recent, http.StatusOK)
}

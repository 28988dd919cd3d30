package handler

import (
	"net/http"
	"strconv"

	"github.com/razaq-yassine/errorscope/internal/api/response"
	"github.com/razaq-yassine/errorscope/internal/store"
	"github.com/razaq-yassine/errorscope/pkg/models"
)

// parseEventFilter extracts the shared filter query parameters. It returns
// false after writing a 400 when an enum value is out of taxonomy.
func parseEventFilter(w http.ResponseWriter, r *http.Request) (store.EventFilter, bool) {
	q := r.URL.Query()
	filter := store.EventFilter{
		Category:         q.Get("category"),
		Severity:         q.Get("severity"),
		ResolutionStatus: q.Get("resolution_status"),
		Environment:      q.Get("environment"),
		Query:            q.Get("q"),
	}

	if filter.Category != "" && !models.ValidCategory(filter.Category) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown category", nil)
		return filter, false
	}
	if filter.Severity != "" && !models.ValidSeverity(filter.Severity) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown severity", nil)
		return filter, false
	}
	if filter.ResolutionStatus != "" && !models.ValidStatus(filter.ResolutionStatus) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown resolution_status", nil)
		return filter, false
	}

	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	return filter, true
}

// NewListHandler returns the handler for
// GET /api/v1/admin/error-dashboard/errors.
func NewListHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := parseEventFilter(w, r)
		if !ok {
			return
		}

		events, total, err := s.ListEvents(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list error events", nil)
			return
		}
		if events == nil {
			events = []*models.ErrorEvent{}
		}

		limit := filter.Limit
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}
		page := filter.Page
		if page <= 0 {
			page = 1
		}

		response.Collection(w, events, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

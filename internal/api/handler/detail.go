package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/razaq-yassine/errorscope/internal/api/response"
	"github.com/razaq-yassine/errorscope/internal/store"
	"github.com/razaq-yassine/errorscope/pkg/models"
)

const relatedErrorsLimit = 50

type groupView struct {
	ID               uuid.UUID  `json:"id"`
	RepresentativeID uuid.UUID  `json:"representative_id"`
	ResolutionStatus string     `json:"resolution_status"`
	ResolvedBy       *string    `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes  *string    `json:"resolution_notes,omitempty"`
	FirstSeenAt      time.Time  `json:"first_seen_at"`
	LastSeenAt       time.Time  `json:"last_seen_at"`
	EventCount       int        `json:"event_count"`
}

type detailResponse struct {
	Event         *models.ErrorEvent    `json:"event"`
	Group         groupView             `json:"group"`
	RelatedErrors []models.RelatedError `json:"related_errors"`
}

// NewDetailHandler returns the handler for
// GET /api/v1/admin/error-dashboard/detail/{errorID}: the full event plus
// its owning group and a bounded view of the group's other members.
func NewDetailHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errorID, err := uuid.Parse(chi.URLParam(r, "errorID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "errorID must be a valid UUID", nil)
			return
		}

		event, err := s.GetEvent(r.Context(), errorID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown error id", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load error event", nil)
			return
		}

		group, err := s.GetGroup(r.Context(), event.GroupID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load error group", nil)
			return
		}

		related, err := s.ListRelatedErrors(r.Context(), group.ID, event.ID, relatedErrorsLimit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load related errors", nil)
			return
		}

		response.JSON(w, detailResponse{
			Event: event,
			Group: groupView{
				ID:               group.ID,
				RepresentativeID: group.RepresentativeID,
				ResolutionStatus: group.ResolutionStatus,
				ResolvedBy:       group.ResolvedBy,
				ResolvedAt:       group.ResolvedAt,
				ResolutionNotes:  group.ResolutionNotes,
				FirstSeenAt:      group.FirstSeenAt,
				LastSeenAt:       group.LastSeenAt,
				EventCount:       group.EventCount,
			},
			RelatedErrors: related,
		})
	}
}

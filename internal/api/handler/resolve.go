package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/razaq-yassine/errorscope/internal/api/middleware"
	"github.com/razaq-yassine/errorscope/internal/api/response"
	"github.com/razaq-yassine/errorscope/internal/ingest"
	"github.com/razaq-yassine/errorscope/internal/store"
)

// Triager defines the resolution workflow operations the handlers depend on.
type Triager interface {
	Acknowledge(ctx context.Context, groupID uuid.UUID) error
	Resolve(ctx context.Context, groupID uuid.UUID, resolvedBy, notes string) error
}

// ownerGroupID maps a detail-view error id to its owning group. Both triage
// actions are invoked from the detail view, so they address the event.
func ownerGroupID(w http.ResponseWriter, r *http.Request, s store.Store) (uuid.UUID, bool) {
	errorID, err := uuid.Parse(chi.URLParam(r, "errorID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "errorID must be a valid UUID", nil)
		return uuid.Nil, false
	}

	event, err := s.GetEvent(r.Context(), errorID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown error id", nil)
		return uuid.Nil, false
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to load error event", nil)
		return uuid.Nil, false
	}
	return event.GroupID, true
}

// NewAcknowledgeHandler returns the handler for
// POST /api/v1/admin/error-dashboard/detail/{errorID}/acknowledge.
func NewAcknowledgeHandler(s store.Store, svc Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, ok := ownerGroupID(w, r, s)
		if !ok {
			return
		}

		if err := svc.Acknowledge(r.Context(), groupID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown group", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to acknowledge group", nil)
			return
		}

		response.JSON(w, map[string]any{"group_id": groupID, "acknowledged": true})
	}
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes"`
}

// NewResolveHandler returns the handler for
// POST /api/v1/admin/error-dashboard/detail/{errorID}/resolve. The
// authenticated key name is the default operator identity when the body
// does not name one.
func NewResolveHandler(s store.Store, svc Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, ok := ownerGroupID(w, r, s)
		if !ok {
			return
		}

		var req resolveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		resolvedBy := req.ResolvedBy
		if resolvedBy == "" {
			if name, found := mw.KeyName(r); found {
				resolvedBy = name
			}
		}

		if err := svc.Resolve(r.Context(), groupID, resolvedBy, req.Notes); err != nil {
			switch {
			case errors.Is(err, ingest.ErrMissingResolvedBy):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "resolved_by is required", nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown group", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to resolve group", nil)
			}
			return
		}

		response.JSON(w, map[string]any{"group_id": groupID, "resolved": true})
	}
}

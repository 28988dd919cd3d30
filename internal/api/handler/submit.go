// Package handler contains the HTTP handlers for the submit endpoint and
// the operator dashboard read surface.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/razaq-yassine/errorscope/internal/api/response"
	"github.com/razaq-yassine/errorscope/internal/ingest"
	"github.com/razaq-yassine/errorscope/pkg/models"
)

// Ingestor defines the write-path interface the submit handler depends on.
type Ingestor interface {
	Ingest(ctx context.Context, sub ingest.Submission) (*models.ErrorEvent, *models.ErrorGroup, error)
}

type submitRequest struct {
	ErrorType        string                 `json:"error_type"`
	TechnicalMessage string                 `json:"technical_message"`
	UserMessage      string                 `json:"user_message"`
	StackTrace       string                 `json:"stack_trace"`
	RequestContext   *models.RequestContext `json:"request_context"`
	UserID           string                 `json:"user_id"`
	SessionID        string                 `json:"session_id"`
	Environment      string                 `json:"environment"`
	Source           string                 `json:"source"`
	Details          map[string]any         `json:"details"`
}

// NewSubmitHandler returns the handler for POST /api/v1/errors/log.
// Clients fire and forget; the body of the 202 is informational only.
// A malformed submission gets a 400 and never reaches the store.
func NewSubmitHandler(svc Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		event, group, err := svc.Ingest(r.Context(), ingest.Submission{
			ErrorType:        req.ErrorType,
			TechnicalMessage: req.TechnicalMessage,
			UserMessage:      req.UserMessage,
			StackTrace:       req.StackTrace,
			RequestContext:   req.RequestContext,
			UserID:           req.UserID,
			SessionID:        req.SessionID,
			Environment:      req.Environment,
			Source:           req.Source,
			Details:          req.Details,
		})
		if err != nil {
			if errors.Is(err, ingest.ErrMissingErrorType) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "error_type is required", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to record error event", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"id":       event.ID,
			"group_id": group.ID,
		})
	}
}

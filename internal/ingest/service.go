// Package ingest is the write path of the pipeline: it assigns identity to
// submitted failures, classifies them, fingerprints them, and hands them to
// the store for atomic persist-and-correlate. It also owns the operator
// resolution workflow. The store is the only shared mutable resource and
// all mutation goes through this service.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/razaq-yassine/errorscope/internal/classify"
	"github.com/razaq-yassine/errorscope/internal/config"
	"github.com/razaq-yassine/errorscope/internal/correlate"
	"github.com/razaq-yassine/errorscope/internal/store"
	"github.com/razaq-yassine/errorscope/pkg/models"
)

var (
	ErrMissingErrorType  = errors.New("error_type is required")
	ErrMissingResolvedBy = errors.New("resolved_by is required")
)

// Submission is a raw captured failure as sent by a client. Identity,
// category, severity, and fingerprint are all server-assigned.
type Submission struct {
	ErrorType        string
	TechnicalMessage string
	UserMessage      string
	StackTrace       string
	RequestContext   *models.RequestContext
	UserID           string
	SessionID        string
	Environment      string
	Source           string
	Details          map[string]any
}

// Service is the ingestion service. Safe for concurrent use; per-fingerprint
// serialization happens in the store.
type Service struct {
	store  store.Store
	window time.Duration
}

// NewService creates the ingestion service with the configured correlation
// window.
func NewService(s store.Store, cfg config.IngestConfig) *Service {
	return &Service{store: s, window: cfg.CorrelationWindow}
}

// Ingest validates, classifies, fingerprints, and persists one submission.
// A malformed submission is rejected without touching the store; a valid one
// is never silently dropped. Returns the stored event and its owning group.
func (s *Service) Ingest(ctx context.Context, sub Submission) (*models.ErrorEvent, *models.ErrorGroup, error) {
	if sub.ErrorType == "" {
		return nil, nil, ErrMissingErrorType
	}

	env := sub.Environment
	if env == "" {
		env = "production"
	}

	category, severity := classify.Classify(sub.ErrorType, sub.TechnicalMessage, sub.Source)

	signal := sub.StackTrace
	if signal == "" {
		signal = sub.TechnicalMessage
	}
	fingerprint := correlate.Fingerprint(sub.ErrorType, category, signal)

	event := &models.ErrorEvent{
		ID:               newEventID(),
		ErrorType:        sub.ErrorType,
		Category:         category,
		Severity:         severity,
		TechnicalMessage: sub.TechnicalMessage,
		UserMessage:      sub.UserMessage,
		StackTrace:       sub.StackTrace,
		RequestContext:   sub.RequestContext,
		UserID:           sub.UserID,
		SessionID:        sub.SessionID,
		Environment:      env,
		Details:          sub.Details,
		Fingerprint:      fingerprint,
		CreatedAt:        time.Now().UTC(),
	}

	group, err := s.store.InsertEvent(ctx, event, s.window)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest event: %w", err)
	}
	return event, group, nil
}

// Acknowledge advances a group new -> acknowledged. Already-acknowledged
// and resolved groups are left untouched.
func (s *Service) Acknowledge(ctx context.Context, groupID uuid.UUID) error {
	return s.store.AcknowledgeGroup(ctx, groupID)
}

// Resolve marks a group resolved with the operator's identity and optional
// notes. Re-resolving overwrites the prior record.
func (s *Service) Resolve(ctx context.Context, groupID uuid.UUID, resolvedBy, notes string) error {
	if resolvedBy == "" {
		return ErrMissingResolvedBy
	}
	return s.store.ResolveGroup(ctx, groupID, resolvedBy, notes)
}

// newEventID returns a UUIDv7 so event ids sort by capture time. The v7
// constructor only fails when the system clock or entropy source is broken;
// a random id keeps ingestion alive in that case.
func newEventID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

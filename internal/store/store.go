package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/razaq-yassine/errorscope/internal/trend"
	"github.com/razaq-yassine/errorscope/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// InsertEvent persists an event and correlates it against recent
	// history in one atomic step: the event either joins the most recent
	// group sharing its fingerprint whose last member is within window, or
	// starts a new group. Attaching to a resolved group reopens it.
	// Returns the owning group after the write.
	InsertEvent(ctx context.Context, event *models.ErrorEvent, window time.Duration) (*models.ErrorGroup, error)

	GetEvent(ctx context.Context, id uuid.UUID) (*models.ErrorEvent, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*models.ErrorGroup, error)
	ListRelatedErrors(ctx context.Context, groupID, excludeID uuid.UUID, limit int) ([]models.RelatedError, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*models.ErrorEvent, int, error)
	CategoryBreakdown(ctx context.Context, filter EventFilter) ([]CategoryCount, error)
	TrendBuckets(ctx context.Context, start, end time.Time, width time.Duration, filter EventFilter) ([]trend.BucketRow, error)

	AcknowledgeGroup(ctx context.Context, groupID uuid.UUID) error
	ResolveGroup(ctx context.Context, groupID uuid.UUID, resolvedBy, notes string) error

	PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// EventFilter narrows event queries. Zero values mean "no constraint".
// Query is a free-text match over error_type and technical_message.
type EventFilter struct {
	Category         string
	Severity         string
	ResolutionStatus string
	Environment      string
	Query            string
	Page             int
	Limit            int
}

// CategoryCount is one row of the category breakdown aggregate.
type CategoryCount struct {
	Category string
	Count    int
}

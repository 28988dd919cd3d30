package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/razaq-yassine/errorscope/internal/correlate"
	"github.com/razaq-yassine/errorscope/internal/store"
	"github.com/razaq-yassine/errorscope/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const window = 24 * time.Hour

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("errorscope_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// newEvent builds an event the way the ingestion service would, with the
// fingerprint derived from the signal.
func newEvent(errorType, category, severity, message string, createdAt time.Time) *models.ErrorEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &models.ErrorEvent{
		ID:               id,
		ErrorType:        errorType,
		Category:         category,
		Severity:         severity,
		TechnicalMessage: message,
		Environment:      "production",
		Fingerprint:      correlate.Fingerprint(errorType, category, message),
		CreatedAt:        createdAt.UTC().Truncate(time.Microsecond),
	}
}

// --- Ingestion & correlation ---

func TestInsertEvent_CreatesNewGroup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	event := newEvent("PaymentDeclinedError", models.CategoryPayment, models.SeverityError,
		"card declined by issuer", time.Now())
	event.UserMessage = "Your card was declined."
	event.RequestContext = &models.RequestContext{
		Endpoint: "/checkout", Method: "POST", ClientIP: "203.0.113.9",
		QueryParams: map[string]string{"step": "confirm"},
	}
	event.Details = map[string]any{"decline_code": "insufficient_funds"}

	group, err := s.InsertEvent(ctx, event, window)
	require.NoError(t, err)

	assert.Equal(t, models.StatusNew, group.ResolutionStatus)
	assert.Equal(t, event.ID, group.RepresentativeID)
	assert.Equal(t, 1, group.EventCount)
	assert.Nil(t, group.ResolvedBy)
	assert.Nil(t, group.ResolvedAt)
	assert.True(t, group.FirstSeenAt.Equal(event.CreatedAt))
	assert.True(t, group.LastSeenAt.Equal(event.CreatedAt))
	assert.Equal(t, group.ID, event.GroupID)

	// Full round trip including the JSONB columns.
	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ErrorType, got.ErrorType)
	assert.Equal(t, event.UserMessage, got.UserMessage)
	assert.Equal(t, event.Fingerprint, got.Fingerprint)
	require.NotNil(t, got.RequestContext)
	assert.Equal(t, "/checkout", got.RequestContext.Endpoint)
	assert.Equal(t, "confirm", got.RequestContext.QueryParams["step"])
	assert.Equal(t, "insufficient_funds", got.Details["decline_code"])
}

func TestInsertEvent_JoinsGroupWithinWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now()
	first := newEvent("PaymentDeclinedError", models.CategoryPayment, models.SeverityError,
		"card declined by issuer", now.Add(-time.Minute))
	second := newEvent("PaymentDeclinedError", models.CategoryPayment, models.SeverityError,
		"card declined by issuer", now)

	g1, err := s.InsertEvent(ctx, first, window)
	require.NoError(t, err)
	g2, err := s.InsertEvent(ctx, second, window)
	require.NoError(t, err)

	assert.Equal(t, g1.ID, g2.ID)
	assert.Equal(t, 2, g2.EventCount)
	assert.Equal(t, first.ID, g2.RepresentativeID)
	assert.True(t, g2.LastSeenAt.Equal(second.CreatedAt))
	assert.True(t, g2.FirstSeenAt.Equal(first.CreatedAt))

	// Siblings from the newest event's perspective: just the first event.
	related, err := s.ListRelatedErrors(ctx, g2.ID, second.ID, 50)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, first.ID, related[0].ID)
}

func TestInsertEvent_NewGroupOutsideWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now()
	stale := newEvent("TimeoutError", models.CategoryNetwork, models.SeverityError,
		"upstream timed out", now.Add(-25*time.Hour))
	fresh := newEvent("TimeoutError", models.CategoryNetwork, models.SeverityError,
		"upstream timed out", now)

	g1, err := s.InsertEvent(ctx, stale, window)
	require.NoError(t, err)
	g2, err := s.InsertEvent(ctx, fresh, window)
	require.NoError(t, err)

	assert.NotEqual(t, g1.ID, g2.ID)
	assert.Equal(t, 1, g2.EventCount)
	assert.Equal(t, fresh.ID, g2.RepresentativeID)
}

func TestInsertEvent_DifferentFingerprintsSplit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now()
	a := newEvent("TimeoutError", models.CategoryNetwork, models.SeverityError,
		"upstream timed out", now)
	b := newEvent("ValidationError", models.CategoryValidation, models.SeverityWarning,
		"required field missing", now)

	g1, err := s.InsertEvent(ctx, a, window)
	require.NoError(t, err)
	g2, err := s.InsertEvent(ctx, b, window)
	require.NoError(t, err)

	assert.NotEqual(t, g1.ID, g2.ID)
}

func TestInsertEvent_ReopensResolvedGroup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now()
	first := newEvent("QueryError", models.CategoryDatabase, models.SeverityCritical,
		"deadlock detected", now.Add(-time.Hour))
	g1, err := s.InsertEvent(ctx, first, window)
	require.NoError(t, err)

	require.NoError(t, s.ResolveGroup(ctx, g1.ID, "alice", "bumped pool size"))

	resolved, err := s.GetGroup(ctx, g1.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusResolved, resolved.ResolutionStatus)
	require.NotNil(t, resolved.ResolvedBy)

	second := newEvent("QueryError", models.CategoryDatabase, models.SeverityCritical,
		"deadlock detected", now)
	g2, err := s.InsertEvent(ctx, second, window)
	require.NoError(t, err)

	assert.Equal(t, g1.ID, g2.ID)
	assert.Equal(t, models.StatusNew, g2.ResolutionStatus)
	assert.Nil(t, g2.ResolvedBy)
	assert.Nil(t, g2.ResolvedAt)
	assert.Nil(t, g2.ResolutionNotes)
	assert.Equal(t, 2, g2.EventCount)
}

func TestInsertEvent_AcknowledgedGroupStaysAcknowledged(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now()
	first := newEvent("UploadError", models.CategoryFileOperation, models.SeverityError,
		"no such file", now.Add(-time.Minute))
	g1, err := s.InsertEvent(ctx, first, window)
	require.NoError(t, err)

	require.NoError(t, s.AcknowledgeGroup(ctx, g1.ID))

	second := newEvent("UploadError", models.CategoryFileOperation, models.SeverityError,
		"no such file", now)
	g2, err := s.InsertEvent(ctx, second, window)
	require.NoError(t, err)

	assert.Equal(t, models.StatusAcknowledged, g2.ResolutionStatus)
}

func TestInsertEvent_ConcurrentIdenticalFingerprints(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	const writers = 10
	now := time.Now()

	var wg sync.WaitGroup
	groupIDs := make([]uuid.UUID, writers)
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			event := newEvent("RenderPanic", models.CategoryInternal, models.SeverityCritical,
				"panic: nil pointer dereference", now)
			group, err := s.InsertEvent(ctx, event, window)
			if err != nil {
				errs[i] = err
				return
			}
			groupIDs[i] = group.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}
	for i := 1; i < writers; i++ {
		assert.Equal(t, groupIDs[0], groupIDs[i], "writer %d landed in a different group", i)
	}

	group, err := s.GetGroup(ctx, groupIDs[0])
	require.NoError(t, err)
	assert.Equal(t, writers, group.EventCount)
}

func TestGetEvent_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetEvent(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetGroup(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Listing & filtering ---

// seedMixedEvents inserts a small known population for filter tests.
func seedMixedEvents(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	events := []*models.ErrorEvent{
		newEvent("PaymentDeclinedError", models.CategoryPayment, models.SeverityError,
			"card declined by issuer", now.Add(-4*time.Minute)),
		newEvent("PaymentDeclinedError", models.CategoryPayment, models.SeverityError,
			"card declined by issuer", now.Add(-3*time.Minute)),
		newEvent("TimeoutError", models.CategoryNetwork, models.SeverityCritical,
			"upstream timed out", now.Add(-2*time.Minute)),
		newEvent("ValidationError", models.CategoryValidation, models.SeverityWarning,
			"required field missing", now.Add(-time.Minute)),
	}
	events[3].Environment = "staging"

	for _, e := range events {
		_, err := s.InsertEvent(ctx, e, window)
		require.NoError(t, err)
	}
}

func TestListEvents_FiltersAndPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	seedMixedEvents(t, s)

	// No filter: newest first.
	all, total, err := s.ListEvents(ctx, store.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, "ValidationError", all[0].ErrorType)
	assert.Equal(t, "PaymentDeclinedError", all[3].ErrorType)

	// Category filter.
	payments, total, err := s.ListEvents(ctx, store.EventFilter{Category: models.CategoryPayment})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, payments, 2)

	// Severity filter.
	critical, total, err := s.ListEvents(ctx, store.EventFilter{Severity: models.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, critical, 1)
	assert.Equal(t, "TimeoutError", critical[0].ErrorType)

	// Environment filter.
	staging, total, err := s.ListEvents(ctx, store.EventFilter{Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, staging, 1)

	// Free-text over error_type and technical_message.
	byType, total, err := s.ListEvents(ctx, store.EventFilter{Query: "payment"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, byType, 2)

	byMessage, total, err := s.ListEvents(ctx, store.EventFilter{Query: "timed out"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, byMessage, 1)

	// Pagination: page 2 of size 3 holds the single remaining event.
	page2, total, err := s.ListEvents(ctx, store.EventFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, page2, 1)
	assert.Equal(t, "PaymentDeclinedError", page2[0].ErrorType)
}

func TestListEvents_ResolutionStatusFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	seedMixedEvents(t, s)

	newOnly, total, err := s.ListEvents(ctx, store.EventFilter{ResolutionStatus: models.StatusNew})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	// Resolve the payment group; its two events drop out of the "new" view.
	require.NotEmpty(t, newOnly)
	payments, _, err := s.ListEvents(ctx, store.EventFilter{Category: models.CategoryPayment, Limit: 1})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.NoError(t, s.ResolveGroup(ctx, payments[0].GroupID, "alice", ""))

	_, total, err = s.ListEvents(ctx, store.EventFilter{ResolutionStatus: models.StatusNew})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, total, err = s.ListEvents(ctx, store.EventFilter{ResolutionStatus: models.StatusResolved})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

// --- Aggregates ---

func TestCategoryBreakdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	seedMixedEvents(t, s)

	counts, err := s.CategoryBreakdown(ctx, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, counts, 3)

	// Ordered by count descending.
	assert.Equal(t, models.CategoryPayment, counts[0].Category)
	assert.Equal(t, 2, counts[0].Count)

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	assert.Equal(t, 4, total)
}

func TestCategoryBreakdown_Empty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	counts, err := s.CategoryBreakdown(context.Background(), store.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestTrendBuckets(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Minute).Add(-10 * time.Minute)
	end := start.Add(10 * time.Minute)

	insert := func(severity string, offset time.Duration) {
		e := newEvent("TimeoutError", models.CategoryNetwork, severity,
			"upstream timed out "+severity, start.Add(offset))
		_, err := s.InsertEvent(ctx, e, window)
		require.NoError(t, err)
	}

	insert(models.SeverityCritical, time.Minute)
	insert(models.SeverityError, time.Minute+10*time.Second)
	insert(models.SeverityWarning, 3*time.Minute)
	insert(models.SeverityInfo, 3*time.Minute) // excluded from trends
	insert(models.SeverityError, 30*time.Minute) // outside window

	buckets, err := s.TrendBuckets(ctx, start, end, time.Minute, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	assert.True(t, buckets[0].Bucket.Equal(start.Add(time.Minute)))
	assert.Equal(t, 1, buckets[0].Critical)
	assert.Equal(t, 1, buckets[0].Error)
	assert.Equal(t, 0, buckets[0].Warning)

	assert.True(t, buckets[1].Bucket.Equal(start.Add(3*time.Minute)))
	assert.Equal(t, 1, buckets[1].Warning)
	assert.Equal(t, 0, buckets[1].Critical)
	assert.Equal(t, 0, buckets[1].Error)
}

// --- Resolution workflow ---

func TestAcknowledgeGroup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	event := newEvent("AuthTokenError", models.CategoryAuthentication, models.SeverityWarning,
		"token expired", time.Now())
	g, err := s.InsertEvent(ctx, event, window)
	require.NoError(t, err)

	require.NoError(t, s.AcknowledgeGroup(ctx, g.ID))
	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, got.ResolutionStatus)

	// Acknowledging again is a no-op.
	require.NoError(t, s.AcknowledgeGroup(ctx, g.ID))

	// Acknowledging a resolved group does not regress it.
	require.NoError(t, s.ResolveGroup(ctx, g.ID, "alice", ""))
	require.NoError(t, s.AcknowledgeGroup(ctx, g.ID))
	got, err = s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.ResolutionStatus)

	assert.ErrorIs(t, s.AcknowledgeGroup(ctx, uuid.New()), store.ErrNotFound)
}

func TestResolveGroup_LastWriteWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	event := newEvent("QueryError", models.CategoryDatabase, models.SeverityCritical,
		"deadlock detected", time.Now())
	g, err := s.InsertEvent(ctx, event, window)
	require.NoError(t, err)

	require.NoError(t, s.ResolveGroup(ctx, g.ID, "alice", "first pass"))
	require.NoError(t, s.ResolveGroup(ctx, g.ID, "bob", "actually a pool issue"))

	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.ResolutionStatus)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, "bob", *got.ResolvedBy)
	require.NotNil(t, got.ResolutionNotes)
	assert.Equal(t, "actually a pool issue", *got.ResolutionNotes)
	require.NotNil(t, got.ResolvedAt)

	// Empty notes stay null rather than empty string.
	require.NoError(t, s.ResolveGroup(ctx, g.ID, "carol", ""))
	got, err = s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ResolutionNotes)

	assert.ErrorIs(t, s.ResolveGroup(ctx, uuid.New(), "alice", ""), store.ErrNotFound)
}

// --- Retention ---

func TestPurgeEventsBefore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now()
	old := newEvent("TimeoutError", models.CategoryNetwork, models.SeverityError,
		"upstream timed out", now.Add(-48*time.Hour))
	recent := newEvent("ValidationError", models.CategoryValidation, models.SeverityWarning,
		"required field missing", now)

	oldGroup, err := s.InsertEvent(ctx, old, window)
	require.NoError(t, err)
	_, err = s.InsertEvent(ctx, recent, window)
	require.NoError(t, err)

	deleted, err := s.PurgeEventsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetEvent(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetGroup(ctx, oldGroup.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetEvent(ctx, recent.ID)
	require.NoError(t, err)
}

// --- API Keys ---

func TestAPIKey_CreateGetRevoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "dashboard-ci",
		KeyHash:   "$2a$10$notarealhashnotarealhashnotarealhash",
		KeyPrefix: "es_1a2b3",
		Scopes:    []string{"read", "admin"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	found, err := s.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, key.Name, found[0].Name)
	assert.Equal(t, []string{"read", "admin"}, found[0].Scopes)
	assert.Nil(t, found[0].LastUsedAt)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	found, err = s.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.NotNil(t, found[0].LastUsedAt)

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	found, err = s.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, found)

	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)
}

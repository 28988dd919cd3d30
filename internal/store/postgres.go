package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/razaq-yassine/errorscope/internal/trend"
	"github.com/razaq-yassine/errorscope/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const eventCols = `id, group_id, error_type, category, severity, technical_message, user_message,
	stack_trace, request_context, user_id, session_id, environment, details, fingerprint, created_at`

const groupCols = `id, fingerprint, representative_id, resolution_status, resolved_by, resolved_at,
	resolution_notes, first_seen_at, last_seen_at, event_count, created_at, updated_at`

// --- Ingestion ---

// InsertEvent runs the correlation lookup-and-create atomically. A Postgres
// advisory lock keyed by the fingerprint serializes concurrent identical
// failures so exactly one group is created, and holds until commit so the
// event insert and group update are visible together.
func (s *PostgresStore) InsertEvent(ctx context.Context, event *models.ErrorEvent, window time.Duration) (*models.ErrorGroup, error) {
	reqCtx, details, err := marshalEventJSON(event)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert event: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, event.Fingerprint); err != nil {
		return nil, fmt.Errorf("lock fingerprint: %w", err)
	}

	var group models.ErrorGroup
	err = scanGroup(tx.QueryRow(ctx,
		`SELECT `+groupCols+` FROM error_groups
		 WHERE fingerprint = $1 AND last_seen_at >= $2
		 ORDER BY last_seen_at DESC LIMIT 1`,
		event.Fingerprint, event.CreatedAt.Add(-window)), &group)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		group = models.ErrorGroup{
			ID:               uuid.New(),
			Fingerprint:      event.Fingerprint,
			RepresentativeID: event.ID,
			ResolutionStatus: models.StatusNew,
			FirstSeenAt:      event.CreatedAt,
			LastSeenAt:       event.CreatedAt,
			EventCount:       1,
			CreatedAt:        event.CreatedAt,
			UpdatedAt:        event.CreatedAt,
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO error_groups (`+groupCols+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			group.ID, group.Fingerprint, group.RepresentativeID, group.ResolutionStatus,
			group.ResolvedBy, group.ResolvedAt, group.ResolutionNotes,
			group.FirstSeenAt, group.LastSeenAt, group.EventCount,
			group.CreatedAt, group.UpdatedAt); err != nil {
			return nil, fmt.Errorf("create error group: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("find error group: %w", err)
	default:
		// Attach to the existing group. A resolved group reopens to new;
		// the prior resolution record is discarded, not archived.
		err = scanGroup(tx.QueryRow(ctx,
			`UPDATE error_groups SET
			   event_count       = event_count + 1,
			   last_seen_at      = GREATEST(last_seen_at, $2),
			   resolution_status = CASE WHEN resolution_status = 'resolved' THEN 'new' ELSE resolution_status END,
			   resolved_by       = CASE WHEN resolution_status = 'resolved' THEN NULL ELSE resolved_by END,
			   resolved_at       = CASE WHEN resolution_status = 'resolved' THEN NULL ELSE resolved_at END,
			   resolution_notes  = CASE WHEN resolution_status = 'resolved' THEN NULL ELSE resolution_notes END,
			   updated_at        = NOW()
			 WHERE id = $1
			 RETURNING `+groupCols,
			group.ID, event.CreatedAt), &group)
		if err != nil {
			return nil, fmt.Errorf("attach to error group: %w", err)
		}
	}

	event.GroupID = group.ID
	if _, err := tx.Exec(ctx,
		`INSERT INTO error_events (`+eventCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		event.ID, event.GroupID, event.ErrorType, event.Category, event.Severity,
		event.TechnicalMessage, event.UserMessage, event.StackTrace, reqCtx,
		event.UserID, event.SessionID, event.Environment, details,
		event.Fingerprint, event.CreatedAt); err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert error event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert event: %w", err)
	}
	return &group, nil
}

// --- Events ---

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.ErrorEvent, error) {
	var e models.ErrorEvent
	err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventCols+` FROM error_events WHERE id = $1`, id), &e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get error event: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id uuid.UUID) (*models.ErrorGroup, error) {
	var g models.ErrorGroup
	err := scanGroup(s.pool.QueryRow(ctx,
		`SELECT `+groupCols+` FROM error_groups WHERE id = $1`, id), &g)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get error group: %w", err)
	}
	return &g, nil
}

// ListRelatedErrors returns the other members of a group, most recent
// first. The UUIDv7 id breaks ties within a timestamp deterministically.
func (s *PostgresStore) ListRelatedErrors(ctx context.Context, groupID, excludeID uuid.UUID, limit int) ([]models.RelatedError, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, error_type, severity, created_at FROM error_events
		 WHERE group_id = $1 AND id <> $2
		 ORDER BY created_at DESC, id DESC LIMIT $3`, groupID, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list related errors: %w", err)
	}
	defer rows.Close()

	related := []models.RelatedError{}
	for rows.Next() {
		var r models.RelatedError
		if err := rows.Scan(&r.ID, &r.ErrorType, &r.Severity, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan related error: %w", err)
		}
		related = append(related, r)
	}
	return related, rows.Err()
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]*models.ErrorEvent, int, error) {
	where, args := buildEventFilter(filter, "e")
	argIdx := len(args) + 1

	join := ""
	if filter.ResolutionStatus != "" {
		join = " JOIN error_groups g ON g.id = e.group_id"
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM error_events e" + join + " WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count error events: %w", err)
	}

	// Normalize pagination
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
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM error_events e%s WHERE %s
		 ORDER BY e.created_at DESC, e.id DESC LIMIT $%d OFFSET $%d`,
		prefixCols(eventCols, "e"), join, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list error events: %w", err)
	}
	defer rows.Close()

	var events []*models.ErrorEvent
	for rows.Next() {
		var e models.ErrorEvent
		if err := scanEvent(rows, &e); err != nil {
			return nil, 0, fmt.Errorf("scan error event: %w", err)
		}
		events = append(events, &e)
	}
	return events, total, rows.Err()
}

// --- Aggregates ---

func (s *PostgresStore) CategoryBreakdown(ctx context.Context, filter EventFilter) ([]CategoryCount, error) {
	where, args := buildEventFilter(filter, "e")
	join := ""
	if filter.ResolutionStatus != "" {
		join = " JOIN error_groups g ON g.id = e.group_id"
	}

	rows, err := s.pool.Query(ctx,
		`SELECT e.category, COUNT(*) FROM error_events e`+join+
			` WHERE `+where+` GROUP BY e.category ORDER BY COUNT(*) DESC, e.category`, args...)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	defer rows.Close()

	var counts []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// TrendBuckets returns non-empty buckets in [start, end), aligned to start.
// Info-severity events are excluded from trend volume.
func (s *PostgresStore) TrendBuckets(ctx context.Context, start, end time.Time, width time.Duration, filter EventFilter) ([]trend.BucketRow, error) {
	conditions := []string{
		"e.created_at >= $2", "e.created_at < $3", "e.severity <> 'info'",
	}
	args := []any{width.Seconds(), start, end}
	argIdx := 4

	if filter.Environment != "" {
		conditions = append(conditions, fmt.Sprintf("e.environment = $%d", argIdx))
		args = append(args, filter.Environment)
		argIdx++
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("e.category = $%d", argIdx))
		args = append(args, filter.Category)
		argIdx++
	}

	query := `SELECT date_bin(make_interval(secs => $1), e.created_at, $2) AS bucket,
		 COUNT(*) FILTER (WHERE e.severity = 'critical'),
		 COUNT(*) FILTER (WHERE e.severity = 'error'),
		 COUNT(*) FILTER (WHERE e.severity = 'warning')
	 FROM error_events e
	 WHERE ` + strings.Join(conditions, " AND ") + `
	 GROUP BY bucket ORDER BY bucket`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trend buckets: %w", err)
	}
	defer rows.Close()

	var buckets []trend.BucketRow
	for rows.Next() {
		var b trend.BucketRow
		if err := rows.Scan(&b.Bucket, &b.Critical, &b.Error, &b.Warning); err != nil {
			return nil, fmt.Errorf("scan trend bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// --- Resolution workflow ---

// AcknowledgeGroup transitions new -> acknowledged. Acknowledging a group
// that is already acknowledged or resolved is a no-op, not an error.
func (s *PostgresStore) AcknowledgeGroup(ctx context.Context, groupID uuid.UUID) error {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT resolution_status FROM error_groups WHERE id = $1`, groupID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get group status: %w", err)
	}
	if status != models.StatusNew {
		return nil
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE error_groups SET resolution_status = 'acknowledged', updated_at = NOW()
		 WHERE id = $1 AND resolution_status = 'new'`, groupID)
	if err != nil {
		return fmt.Errorf("acknowledge group: %w", err)
	}
	return nil
}

// ResolveGroup transitions any status to resolved. Resolution is an
// idempotent annotation, not a ledger: re-resolving overwrites the prior
// record, last write wins.
func (s *PostgresStore) ResolveGroup(ctx context.Context, groupID uuid.UUID, resolvedBy, notes string) error {
	var notesVal *string
	if notes != "" {
		notesVal = &notes
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE error_groups SET
		   resolution_status = 'resolved',
		   resolved_by       = $2,
		   resolved_at       = NOW(),
		   resolution_notes  = $3,
		   updated_at        = NOW()
		 WHERE id = $1`, groupID, resolvedBy, notesVal)
	if err != nil {
		return fmt.Errorf("resolve group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Retention ---

// PurgeEventsBefore deletes events older than cutoff and the groups they
// leave empty. Returns the number of events removed.
func (s *PostgresStore) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM error_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM error_groups g
		 WHERE NOT EXISTS (SELECT 1 FROM error_events e WHERE e.group_id = g.id)`); err != nil {
		return tag.RowsAffected(), fmt.Errorf("purge empty groups: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

// buildEventFilter builds a WHERE clause over the aliased error_events
// table. Filters on resolution_status assume the caller joined error_groups
// as g.
func buildEventFilter(filter EventFilter, alias string) (string, []any) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("%s.category = $%d", alias, argIdx))
		args = append(args, filter.Category)
		argIdx++
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("%s.severity = $%d", alias, argIdx))
		args = append(args, filter.Severity)
		argIdx++
	}
	if filter.Environment != "" {
		conditions = append(conditions, fmt.Sprintf("%s.environment = $%d", alias, argIdx))
		args = append(args, filter.Environment)
		argIdx++
	}
	if filter.ResolutionStatus != "" {
		conditions = append(conditions, fmt.Sprintf("g.resolution_status = $%d", argIdx))
		args = append(args, filter.ResolutionStatus)
		argIdx++
	}
	if filter.Query != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(%s.error_type ILIKE $%d OR %s.technical_message ILIKE $%d)", alias, argIdx, alias, argIdx))
		args = append(args, "%"+filter.Query+"%")
		argIdx++
	}

	return strings.Join(conditions, " AND "), args
}

// prefixCols qualifies each column in a comma-separated list with alias.
func prefixCols(cols, alias string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func marshalEventJSON(event *models.ErrorEvent) (reqCtx, details []byte, err error) {
	if event.RequestContext != nil {
		reqCtx, err = json.Marshal(event.RequestContext)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request context: %w", err)
		}
	}
	if event.Details != nil {
		details, err = json.Marshal(event.Details)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal details: %w", err)
		}
	}
	return reqCtx, details, nil
}

func scanEvent(row pgx.Row, e *models.ErrorEvent) error {
	var reqCtx, details []byte
	if err := row.Scan(&e.ID, &e.GroupID, &e.ErrorType, &e.Category, &e.Severity,
		&e.TechnicalMessage, &e.UserMessage, &e.StackTrace, &reqCtx,
		&e.UserID, &e.SessionID, &e.Environment, &details,
		&e.Fingerprint, &e.CreatedAt); err != nil {
		return err
	}
	if len(reqCtx) > 0 {
		e.RequestContext = &models.RequestContext{}
		if err := json.Unmarshal(reqCtx, e.RequestContext); err != nil {
			return fmt.Errorf("unmarshal request context: %w", err)
		}
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return nil
}

func scanGroup(row pgx.Row, g *models.ErrorGroup) error {
	return row.Scan(&g.ID, &g.Fingerprint, &g.RepresentativeID, &g.ResolutionStatus,
		&g.ResolvedBy, &g.ResolvedAt, &g.ResolutionNotes,
		&g.FirstSeenAt, &g.LastSeenAt, &g.EventCount, &g.CreatedAt, &g.UpdatedAt)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

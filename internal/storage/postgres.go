package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-rank-tracker/internal/ranking"
	"shop-rank-tracker/internal/search"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

//go:embed schema/postgres.sql
var postgresSchema string

const (
	pgInsertTargetSQL = `INSERT INTO targets (
        keyword,
        match_mode,
        match_value,
        sort_mode,
        active
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, created_at, updated_at;`

	pgSelectTargetSQL = `SELECT id, keyword, match_mode, match_value, sort_mode, active, created_at, updated_at
    FROM targets
    WHERE id = $1;`

	pgListTargetsSQL = `SELECT id, keyword, match_mode, match_value, sort_mode, active, created_at, updated_at
    FROM targets
    WHERE active OR NOT $1
    ORDER BY id;`

	pgUpdateTargetSQL = `UPDATE targets
    SET keyword     = $2,
        match_mode  = $3,
        match_value = $4,
        sort_mode   = $5,
        active      = $6,
        updated_at  = now()
    WHERE id = $1
    RETURNING updated_at;`

	pgDeleteTargetSQL = `DELETE FROM targets WHERE id = $1;`

	pgInsertObservationSQL = `INSERT INTO observations (
        target_id,
        rank,
        title,
        store_name,
        price,
        link,
        product_id,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id;`

	pgLatestObservationsSQL = `WITH ranked AS (
        SELECT o.*,
               ROW_NUMBER() OVER (PARTITION BY o.target_id ORDER BY o.observed_at DESC, o.id DESC) AS rn
        FROM observations o
    )
    SELECT
        t.id, t.keyword, t.match_mode, t.match_value, t.sort_mode, t.active, t.created_at, t.updated_at,
        c.id, c.rank, c.title, c.store_name, c.price, c.link, c.product_id, c.observed_at,
        p.id, p.rank, p.title, p.store_name, p.price, p.link, p.product_id, p.observed_at
    FROM targets t
    LEFT JOIN ranked c ON c.target_id = t.id AND c.rn = 1
    LEFT JOIN ranked p ON p.target_id = t.id AND p.rn = 2
    WHERE t.active
    ORDER BY t.id;`

	pgTargetHistorySQL = `SELECT id, target_id, rank, title, store_name, price, link, product_id, observed_at
    FROM observations
    WHERE target_id = $1
      AND observed_at >= $2
    ORDER BY observed_at, id;`

	pgHistorySQL = `SELECT o.id, o.target_id, o.rank, o.title, o.store_name, o.price, o.link, o.product_id, o.observed_at,
        t.keyword, t.match_value
    FROM observations o
    JOIN targets t ON t.id = o.target_id
    WHERE o.observed_at >= $1
    ORDER BY o.observed_at, o.id;`

	pgInsertAlertEventSQL = `INSERT INTO alert_events (
        target_id,
        kind,
        message,
        sent_at
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id;`

	pgListAlertEventsSQL = `SELECT a.id, a.target_id, a.kind, a.message, a.sent_at, t.keyword
    FROM alert_events a
    JOIN targets t ON t.id = a.target_id
    ORDER BY a.sent_at DESC, a.id DESC
    LIMIT $1;`

	pgGetSettingSQL = `SELECT value FROM settings WHERE key = $1;`

	pgSetSettingSQL = `INSERT INTO settings (key, value) VALUES ($1, $2)
    ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value;`

	pgAllSettingsSQL = `SELECT key, value FROM settings;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// session locks die with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// CreateTarget inserts a target and returns it with its id and timestamps.
func (s *PostgresStore) CreateTarget(ctx context.Context, t Target) (Target, error) {
	pool, err := s.getPool()
	if err != nil {
		return Target{}, err
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}

	row := pool.QueryRow(ctx, pgInsertTargetSQL,
		t.Keyword,
		string(t.MatchMode),
		t.MatchValue,
		string(t.Sort),
		t.Active,
	)
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Target{}, fmt.Errorf("insert target: %w", err)
	}
	return t, nil
}

// GetTarget loads a single target.
func (s *PostgresStore) GetTarget(ctx context.Context, id int64) (Target, error) {
	pool, err := s.getPool()
	if err != nil {
		return Target{}, err
	}
	t, err := scanPGTarget(pool.QueryRow(ctx, pgSelectTargetSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Target{}, ErrNotFound
	}
	if err != nil {
		return Target{}, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// ListTargets lists targets ordered by id.
func (s *PostgresStore) ListTargets(ctx context.Context, activeOnly bool) ([]Target, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListTargetsSQL, activeOnly)
	if queryErr != nil {
		return nil, fmt.Errorf("list targets: %w", queryErr)
	}
	defer rows.Close()

	targets := make([]Target, 0)
	for rows.Next() {
		t, scanErr := scanPGTarget(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan target: %w", scanErr)
		}
		targets = append(targets, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return targets, nil
}

// UpdateTarget applies an explicit edit and bumps updated_at.
func (s *PostgresStore) UpdateTarget(ctx context.Context, id int64, patch TargetPatch) (Target, error) {
	pool, err := s.getPool()
	if err != nil {
		return Target{}, err
	}

	current, err := s.GetTarget(ctx, id)
	if err != nil {
		return Target{}, err
	}
	if patch.Empty() {
		return current, nil
	}
	next := patch.Apply(current)
	if err := next.Validate(); err != nil {
		return Target{}, err
	}

	row := pool.QueryRow(ctx, pgUpdateTargetSQL,
		id,
		next.Keyword,
		string(next.MatchMode),
		next.MatchValue,
		string(next.Sort),
		next.Active,
	)
	if err := row.Scan(&next.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Target{}, ErrNotFound
		}
		return Target{}, fmt.Errorf("update target: %w", err)
	}
	return next, nil
}

// DeleteTarget removes a target; observations and alert events cascade.
func (s *PostgresStore) DeleteTarget(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, pgDeleteTargetSQL, id)
	if execErr != nil {
		return fmt.Errorf("delete target: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendObservation persists one observation.
func (s *PostgresStore) AppendObservation(ctx context.Context, o Observation) (Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return Observation{}, err
	}
	if err := o.validate(); err != nil {
		return Observation{}, err
	}

	row := pool.QueryRow(ctx, pgInsertObservationSQL,
		o.TargetID,
		o.Rank.Nullable(),
		o.Title,
		o.StoreName,
		o.Price,
		o.Link,
		o.ProductID,
		o.ObservedAt,
	)
	if err := row.Scan(&o.ID); err != nil {
		return Observation{}, fmt.Errorf("insert observation: %w", err)
	}
	return o, nil
}

// LatestObservations returns every active target with its current and previous observation.
func (s *PostgresStore) LatestObservations(ctx context.Context) ([]LatestObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgLatestObservationsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list latest observations: %w", queryErr)
	}
	defer rows.Close()

	latest := make([]LatestObservation, 0)
	for rows.Next() {
		var (
			t        Target
			mode     string
			sortMode string
			cur      nullableObservation
			prev     nullableObservation
		)
		if err := rows.Scan(
			&t.ID, &t.Keyword, &mode, &t.MatchValue, &sortMode, &t.Active, &t.CreatedAt, &t.UpdatedAt,
			&cur.id, &cur.rank, &cur.title, &cur.storeName, &cur.price, &cur.link, &cur.productID, &cur.observedAt,
			&prev.id, &prev.rank, &prev.title, &prev.storeName, &prev.price, &prev.link, &prev.productID, &prev.observedAt,
		); err != nil {
			return nil, fmt.Errorf("scan latest observation: %w", err)
		}
		t.MatchMode = ranking.MatchMode(mode)
		t.Sort = search.SortMode(sortMode)
		latest = append(latest, LatestObservation{
			Target:   t,
			Current:  cur.toObservation(t.ID),
			Previous: prev.toObservation(t.ID),
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return latest, nil
}

// TargetHistory lists a target's observations since a point in time, oldest first.
func (s *PostgresStore) TargetHistory(ctx context.Context, targetID int64, since time.Time) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgTargetHistorySQL, targetID, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list target history: %w", queryErr)
	}
	defer rows.Close()

	history := make([]Observation, 0)
	for rows.Next() {
		var (
			o    Observation
			rank *int
		)
		if err := rows.Scan(&o.ID, &o.TargetID, &rank, &o.Title, &o.StoreName, &o.Price, &o.Link, &o.ProductID, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Rank = ranking.FromNullable(rank)
		history = append(history, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return history, nil
}

// History lists all observations since a point in time with their keywords.
func (s *PostgresStore) History(ctx context.Context, since time.Time) ([]HistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgHistorySQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list history: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			e    HistoryEntry
			rank *int
		)
		if err := rows.Scan(
			&e.ID, &e.TargetID, &rank, &e.Title, &e.StoreName, &e.Price, &e.Link, &e.ProductID, &e.ObservedAt,
			&e.Keyword, &e.MatchValue,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Rank = ranking.FromNullable(rank)
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// AppendAlertEvent records a delivered alert.
func (s *PostgresStore) AppendAlertEvent(ctx context.Context, e AlertEvent) (AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertEvent{}, err
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	row := pool.QueryRow(ctx, pgInsertAlertEventSQL, e.TargetID, e.Kind, e.Message, e.SentAt)
	if err := row.Scan(&e.ID); err != nil {
		return AlertEvent{}, fmt.Errorf("insert alert event: %w", err)
	}
	return e, nil
}

// ListAlertEvents lists the most recent alert events.
func (s *PostgresStore) ListAlertEvents(ctx context.Context, limit int) ([]AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListAlertEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list alert events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]AlertEvent, 0, limit)
	for rows.Next() {
		var e AlertEvent
		if err := rows.Scan(&e.ID, &e.TargetID, &e.Kind, &e.Message, &e.SentAt, &e.Keyword); err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// GetSetting reads one setting; ok is false when the key is absent.
func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", false, err
	}
	var value string
	if err := pool.QueryRow(ctx, pgGetSettingSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts one setting.
func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSetSettingSQL, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// AllSettings returns the whole settings map.
func (s *PostgresStore) AllSettings(ctx context.Context) (map[string]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, pgAllSettingsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list settings: %w", queryErr)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[key] = value
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanPGTarget(row pgx.Row) (Target, error) {
	var (
		t        Target
		mode     string
		sortMode string
	)
	if err := row.Scan(&t.ID, &t.Keyword, &mode, &t.MatchValue, &sortMode, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Target{}, err
	}
	t.MatchMode = ranking.MatchMode(mode)
	t.Sort = search.SortMode(sortMode)
	return t, nil
}

// nullableObservation receives the left-joined columns of the latest query.
type nullableObservation struct {
	id         *int64
	rank       *int
	title      *string
	storeName  *string
	price      *int64
	link       *string
	productID  *string
	observedAt *time.Time
}

func (n nullableObservation) toObservation(targetID int64) *Observation {
	if n.id == nil {
		return nil
	}
	o := &Observation{
		ID:        *n.id,
		TargetID:  targetID,
		Rank:      ranking.FromNullable(n.rank),
		Title:     deref(n.title),
		StoreName: deref(n.storeName),
		Link:      deref(n.link),
		ProductID: deref(n.productID),
	}
	if n.price != nil {
		o.Price = *n.price
	}
	if n.observedAt != nil {
		o.ObservedAt = *n.observedAt
	}
	return o
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Store = (*PostgresStore)(nil)

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"shop-rank-tracker/internal/ranking"
	"shop-rank-tracker/internal/search"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// A batch lock older than this is considered abandoned by a crashed process.
const sqliteLockStaleAfter = 6 * time.Hour

const (
	sqliteInsertTargetSQL = `INSERT INTO targets (keyword, match_mode, match_value, sort_mode, active, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?);`

	sqliteSelectTargetSQL = `SELECT id, keyword, match_mode, match_value, sort_mode, active, created_at, updated_at
    FROM targets
    WHERE id = ?;`

	sqliteListTargetsSQL = `SELECT id, keyword, match_mode, match_value, sort_mode, active, created_at, updated_at
    FROM targets
    WHERE active = 1 OR ? = 0
    ORDER BY id;`

	sqliteUpdateTargetSQL = `UPDATE targets
    SET keyword = ?, match_mode = ?, match_value = ?, sort_mode = ?, active = ?, updated_at = ?
    WHERE id = ?;`

	sqliteDeleteTargetSQL = `DELETE FROM targets WHERE id = ?;`

	sqliteInsertObservationSQL = `INSERT INTO observations (target_id, rank, title, store_name, price, link, product_id, observed_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

	sqliteLatestObservationsSQL = `WITH ranked AS (
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
    WHERE t.active = 1
    ORDER BY t.id;`

	sqliteTargetHistorySQL = `SELECT id, target_id, rank, title, store_name, price, link, product_id, observed_at
    FROM observations
    WHERE target_id = ? AND observed_at >= ?
    ORDER BY observed_at, id;`

	sqliteHistorySQL = `SELECT o.id, o.target_id, o.rank, o.title, o.store_name, o.price, o.link, o.product_id, o.observed_at,
        t.keyword, t.match_value
    FROM observations o
    JOIN targets t ON t.id = o.target_id
    WHERE o.observed_at >= ?
    ORDER BY o.observed_at, o.id;`

	sqliteInsertAlertEventSQL = `INSERT INTO alert_events (target_id, kind, message, sent_at) VALUES (?, ?, ?, ?);`

	sqliteListAlertEventsSQL = `SELECT a.id, a.target_id, a.kind, a.message, a.sent_at, t.keyword
    FROM alert_events a
    JOIN targets t ON t.id = a.target_id
    ORDER BY a.sent_at DESC, a.id DESC
    LIMIT ?;`

	sqliteGetSettingSQL  = `SELECT value FROM settings WHERE key = ?;`
	sqliteSetSettingSQL  = `INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value;`
	sqliteAllSettingsSQL = `SELECT key, value FROM settings;`

	sqliteTryLockSQL = `INSERT INTO batch_locks (key, holder, acquired_at) VALUES (?, ?, ?)
    ON CONFLICT (key) DO UPDATE SET holder = excluded.holder, acquired_at = excluded.acquired_at
    WHERE batch_locks.acquired_at < ?;`
	sqliteUnlockSQL = `DELETE FROM batch_locks WHERE key = ? AND holder = ?;`
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and creates) the database at path. ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps a :memory: database alive on a single connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func sqliteDSN(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	if path != ":memory:" {
		pragmas += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + pragmas
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Migrate applies the embedded schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock takes a lease row so two processes sharing the file never run a batch
// at the same time.
func (s *SQLiteStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	holder := uuid.NewString()
	now := s.now()
	res, err := s.db.ExecContext(ctx, sqliteTryLockSQL, key, holder, toMillis(now), toMillis(now.Add(-sqliteLockStaleAfter)))
	if err != nil {
		return nil, false, fmt.Errorf("try batch lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("try batch lock: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = s.db.ExecContext(ctxUnlock, sqliteUnlockSQL, key, holder)
	}
	return unlock, true, nil
}

// CreateTarget inserts a target and returns it with its id and timestamps.
func (s *SQLiteStore) CreateTarget(ctx context.Context, t Target) (Target, error) {
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, sqliteInsertTargetSQL,
		t.Keyword, string(t.MatchMode), t.MatchValue, string(t.Sort), boolToInt(t.Active), toMillis(now), toMillis(now))
	if err != nil {
		return Target{}, fmt.Errorf("insert target: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Target{}, fmt.Errorf("insert target: %w", err)
	}
	t.ID = id
	t.CreatedAt = fromMillis(toMillis(now))
	t.UpdatedAt = t.CreatedAt
	return t, nil
}

// GetTarget loads a single target.
func (s *SQLiteStore) GetTarget(ctx context.Context, id int64) (Target, error) {
	t, err := scanSQLiteTarget(s.db.QueryRowContext(ctx, sqliteSelectTargetSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Target{}, ErrNotFound
	}
	if err != nil {
		return Target{}, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// ListTargets lists targets ordered by id.
func (s *SQLiteStore) ListTargets(ctx context.Context, activeOnly bool) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListTargetsSQL, boolToInt(activeOnly))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	targets := make([]Target, 0)
	for rows.Next() {
		t, scanErr := scanSQLiteTarget(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan target: %w", scanErr)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// UpdateTarget applies an explicit edit and bumps updated_at.
func (s *SQLiteStore) UpdateTarget(ctx context.Context, id int64, patch TargetPatch) (Target, error) {
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

	updated := toMillis(s.now())
	res, err := s.db.ExecContext(ctx, sqliteUpdateTargetSQL,
		next.Keyword, string(next.MatchMode), next.MatchValue, string(next.Sort), boolToInt(next.Active), updated, id)
	if err != nil {
		return Target{}, fmt.Errorf("update target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Target{}, ErrNotFound
	}
	next.UpdatedAt = fromMillis(updated)
	return next, nil
}

// DeleteTarget removes a target; observations and alert events cascade.
func (s *SQLiteStore) DeleteTarget(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, sqliteDeleteTargetSQL, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendObservation persists one observation.
func (s *SQLiteStore) AppendObservation(ctx context.Context, o Observation) (Observation, error) {
	if err := o.validate(); err != nil {
		return Observation{}, err
	}
	var rank sql.NullInt64
	if pos, ok := o.Rank.Position(); ok {
		rank = sql.NullInt64{Int64: int64(pos), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, sqliteInsertObservationSQL,
		o.TargetID, rank, o.Title, o.StoreName, o.Price, o.Link, o.ProductID, toMillis(o.ObservedAt))
	if err != nil {
		return Observation{}, fmt.Errorf("insert observation: %w", err)
	}
	if o.ID, err = res.LastInsertId(); err != nil {
		return Observation{}, fmt.Errorf("insert observation: %w", err)
	}
	return o, nil
}

// LatestObservations returns every active target with its current and previous observation.
func (s *SQLiteStore) LatestObservations(ctx context.Context) ([]LatestObservation, error) {
	rows, err := s.db.QueryContext(ctx, sqliteLatestObservationsSQL)
	if err != nil {
		return nil, fmt.Errorf("list latest observations: %w", err)
	}
	defer rows.Close()

	latest := make([]LatestObservation, 0)
	for rows.Next() {
		var (
			t                Target
			mode, sortMode   string
			active           int64
			created, updated int64
			cur, prev        sqliteNullObservation
		)
		if err := rows.Scan(
			&t.ID, &t.Keyword, &mode, &t.MatchValue, &sortMode, &active, &created, &updated,
			&cur.id, &cur.rank, &cur.title, &cur.storeName, &cur.price, &cur.link, &cur.productID, &cur.observedAt,
			&prev.id, &prev.rank, &prev.title, &prev.storeName, &prev.price, &prev.link, &prev.productID, &prev.observedAt,
		); err != nil {
			return nil, fmt.Errorf("scan latest observation: %w", err)
		}
		t.MatchMode = ranking.MatchMode(mode)
		t.Sort = search.SortMode(sortMode)
		t.Active = active != 0
		t.CreatedAt = fromMillis(created)
		t.UpdatedAt = fromMillis(updated)
		latest = append(latest, LatestObservation{
			Target:   t,
			Current:  cur.toObservation(t.ID),
			Previous: prev.toObservation(t.ID),
		})
	}
	return latest, rows.Err()
}

// TargetHistory lists a target's observations since a point in time, oldest first.
func (s *SQLiteStore) TargetHistory(ctx context.Context, targetID int64, since time.Time) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, sqliteTargetHistorySQL, targetID, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("list target history: %w", err)
	}
	defer rows.Close()

	history := make([]Observation, 0)
	for rows.Next() {
		var (
			o        Observation
			rank     sql.NullInt64
			observed int64
		)
		if err := rows.Scan(&o.ID, &o.TargetID, &rank, &o.Title, &o.StoreName, &o.Price, &o.Link, &o.ProductID, &observed); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Rank = rankFromNull(rank)
		o.ObservedAt = fromMillis(observed)
		history = append(history, o)
	}
	return history, rows.Err()
}

// History lists all observations since a point in time with their keywords.
func (s *SQLiteStore) History(ctx context.Context, since time.Time) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, sqliteHistorySQL, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			e        HistoryEntry
			rank     sql.NullInt64
			observed int64
		)
		if err := rows.Scan(
			&e.ID, &e.TargetID, &rank, &e.Title, &e.StoreName, &e.Price, &e.Link, &e.ProductID, &observed,
			&e.Keyword, &e.MatchValue,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Rank = rankFromNull(rank)
		e.ObservedAt = fromMillis(observed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppendAlertEvent records a delivered alert.
func (s *SQLiteStore) AppendAlertEvent(ctx context.Context, e AlertEvent) (AlertEvent, error) {
	if e.SentAt.IsZero() {
		e.SentAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, sqliteInsertAlertEventSQL, e.TargetID, e.Kind, e.Message, toMillis(e.SentAt))
	if err != nil {
		return AlertEvent{}, fmt.Errorf("insert alert event: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return AlertEvent{}, fmt.Errorf("insert alert event: %w", err)
	}
	return e, nil
}

// ListAlertEvents lists the most recent alert events.
func (s *SQLiteStore) ListAlertEvents(ctx context.Context, limit int) ([]AlertEvent, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListAlertEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list alert events: %w", err)
	}
	defer rows.Close()

	events := make([]AlertEvent, 0)
	for rows.Next() {
		var (
			e    AlertEvent
			sent int64
		)
		if err := rows.Scan(&e.ID, &e.TargetID, &e.Kind, &e.Message, &sent, &e.Keyword); err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		e.SentAt = fromMillis(sent)
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetSetting reads one setting; ok is false when the key is absent.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, sqliteGetSettingSQL, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts one setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, sqliteSetSettingSQL, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// AllSettings returns the whole settings map.
func (s *SQLiteStore) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, sqliteAllSettingsSQL)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
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
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTarget(row rowScanner) (Target, error) {
	var (
		t                Target
		mode, sortMode   string
		active           int64
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.Keyword, &mode, &t.MatchValue, &sortMode, &active, &created, &updated); err != nil {
		return Target{}, err
	}
	t.MatchMode = ranking.MatchMode(mode)
	t.Sort = search.SortMode(sortMode)
	t.Active = active != 0
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}

type sqliteNullObservation struct {
	id         sql.NullInt64
	rank       sql.NullInt64
	title      sql.NullString
	storeName  sql.NullString
	price      sql.NullInt64
	link       sql.NullString
	productID  sql.NullString
	observedAt sql.NullInt64
}

func (n sqliteNullObservation) toObservation(targetID int64) *Observation {
	if !n.id.Valid {
		return nil
	}
	return &Observation{
		ID:         n.id.Int64,
		TargetID:   targetID,
		Rank:       rankFromNull(n.rank),
		Title:      n.title.String,
		StoreName:  n.storeName.String,
		Price:      n.price.Int64,
		Link:       n.link.String,
		ProductID:  n.productID.String,
		ObservedAt: fromMillis(n.observedAt.Int64),
	}
}

func rankFromNull(v sql.NullInt64) ranking.Rank {
	if !v.Valid {
		return ranking.NotFound
	}
	return ranking.At(int(v.Int64))
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)

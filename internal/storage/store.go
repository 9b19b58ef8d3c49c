package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shop-rank-tracker/internal/config"
)

// TargetStore manages tracked targets.
type TargetStore interface {
	CreateTarget(ctx context.Context, t Target) (Target, error)
	GetTarget(ctx context.Context, id int64) (Target, error)
	ListTargets(ctx context.Context, activeOnly bool) ([]Target, error)
	UpdateTarget(ctx context.Context, id int64, patch TargetPatch) (Target, error)
	DeleteTarget(ctx context.Context, id int64) error
}

// ObservationStore appends and reads rank observations.
type ObservationStore interface {
	AppendObservation(ctx context.Context, o Observation) (Observation, error)
	LatestObservations(ctx context.Context) ([]LatestObservation, error)
	TargetHistory(ctx context.Context, targetID int64, since time.Time) ([]Observation, error)
	History(ctx context.Context, since time.Time) ([]HistoryEntry, error)
}

// AlertStore is the alert audit log.
type AlertStore interface {
	AppendAlertEvent(ctx context.Context, e AlertEvent) (AlertEvent, error)
	ListAlertEvents(ctx context.Context, limit int) ([]AlertEvent, error)
}

// SettingsStore is a flat string key-value map.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// AdvisoryLocker exposes cross-process lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates every persistence concern.
type Store interface {
	TargetStore
	ObservationStore
	AlertStore
	SettingsStore
	AdvisoryLocker
	Migrate(ctx context.Context) error
	Close()
}

// Open connects to the configured driver and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "postgres":
		var pool *pgxpool.Pool
		pool, err = NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = NewPostgresStore(pool)
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		store, err = OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

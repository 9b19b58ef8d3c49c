//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"shop-rank-tracker/internal/config"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ranktracker",
				"POSTGRES_PASSWORD": "ranktracker",
				"POSTGRES_DB":       "ranktracker",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://ranktracker:ranktracker@%s:%s/ranktracker?sslmode=disable", host, port.Port())
}

func TestPostgresStoreIntegration(t *testing.T) {
	dsn := startPostgres(t)

	store, err := Open(context.Background(), config.DatabaseConfig{Driver: "postgres", DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	defer store.Close()

	runStoreSuite(t, store)
}

func TestPostgresAdvisoryLockExcludes(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := Open(ctx, config.DatabaseConfig{Driver: "postgres", DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	defer store.Close()

	unlock, ok, err := store.TryAdvisoryLock(ctx, 99)
	require.NoError(t, err)
	require.True(t, ok)

	// a different session cannot take it
	_, ok, err = store.TryAdvisoryLock(ctx, 99)
	require.NoError(t, err)
	require.False(t, ok)

	unlock()
}

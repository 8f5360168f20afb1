//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("distributor_migrate"),
		postgres.WithUsername("distributor"),
		postgres.WithPassword("distributor"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestIntegrationUpDownSeed(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	m, err := New(dsn)
	require.NoError(t, err)
	defer m.Close()

	st, err := m.Status()
	require.NoError(t, err)
	assert.False(t, st.Applied)
	assert.ErrorIs(t, m.Down(ctx), ErrNothingApplied)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "up on a current schema is a no-op")
	st, err = m.Status()
	require.NoError(t, err)
	assert.Equal(t, Status{Version: 3, Latest: 3, Applied: true}, st)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Seed(ctx, db))
	require.NoError(t, Seed(ctx, db), "seeds are idempotent")
	var roles int
	require.NoError(t, db.QueryRowContext(ctx, `select count(*) from roles`).Scan(&roles))
	assert.Equal(t, 3, roles)

	require.NoError(t, m.Down(ctx))
	st, err = m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(2), st.Version)
	require.NoError(t, m.Up(ctx))
}

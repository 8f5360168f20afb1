package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributor.app/internal/config"
)

func TestOpenMemoryShared(t *testing.T) {
	b, err := Open(context.Background(), config.Config{
		Store:             config.BackendMemory,
		RevocationBackend: config.BackendMemory,
		RoleCacheSize:     8,
	})
	require.NoError(t, err)
	defer b.Close()

	assert.NotNil(t, b.Store)
	assert.NotNil(t, b.Revocation)
	assert.Nil(t, b.Postgres)
	assert.Empty(t, b.Checks)
}

func TestOpenRedisRevocation(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	b, err := Open(ctx, config.Config{
		Store:             config.BackendMemory,
		RevocationBackend: config.BackendRedis,
		RedisURL:          "redis://" + srv.Addr(),
		RoleCacheSize:     8,
	})
	require.NoError(t, err)
	defer b.Close()

	require.Len(t, b.Checks, 1)
	assert.Equal(t, "redis", b.Checks[0].Name)
	require.NoError(t, b.Checks[0].Check(ctx))

	inserted, err := b.Revocation.Insert(ctx, "k", time.Now())
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Config{Store: "mongo", RoleCacheSize: 8})
	assert.Error(t, err)
}

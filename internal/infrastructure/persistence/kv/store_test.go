package kv

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "etablissement.123.openDays")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "etablissement.123.openDays", `["1","2"]`))
	require.NoError(t, store.Set(ctx, "etablissement.123.openDays", `["3"]`))
	require.NoError(t, store.Set(ctx, "etablissement.123.holidays", `"treatedAsOpen"`))

	v, ok, err := store.Get(ctx, "etablissement.123.openDays")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["3"]`, v)

	require.NoError(t, store.Delete(ctx, "etablissement.123.openDays", "etablissement.123.holidays", "absent"))
	_, ok, err = store.Get(ctx, "etablissement.123.holidays")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx))

	require.NoError(t, store.SetMany(ctx, map[string]string{
		"etablissement.456.openDays": `["1"]`,
		"etablissement.456.holidays": `"treatedAsClosed"`,
	}))
	for key, want := range map[string]string{
		"etablissement.456.openDays": `["1"]`,
		"etablissement.456.holidays": `"treatedAsClosed"`,
	} {
		v, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, key)
		assert.Equal(t, want, v)
	}
	require.NoError(t, store.Delete(ctx, "etablissement.456.openDays", "etablissement.456.holidays"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)

	require.NoError(t, store.Close())
	_, _, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(context.Background(), "k", "v")
		}()
	}
	wg.Wait()
	v, ok, _ := store.Get(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestSQLiteStore(t *testing.T) {
	cfg := &config.Config{
		KVBackend:         config.BackendSQLite,
		SQLitePath:        filepath.Join(t.TempDir(), "store.db"),
		DBMaxOpenConns:    4,
		DBMaxIdleConns:    1,
		DBConnMaxLifetime: time.Minute,
	}
	store, err := New(context.Background(), cfg, logging.NewDiscardLogger())
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	cfg := &config.Config{KVBackend: config.BackendRedis, RedisURL: redisURL}
	store, err := New(context.Background(), cfg, logging.NewDiscardLogger())
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), &config.Config{KVBackend: "etcd"}, logging.NewDiscardLogger())
	assert.Error(t, err)
}

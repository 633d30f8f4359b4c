// Package kv implements the string key-value store that holds inspectors'
// local corrections. Backends: SQLite, libsql, Redis and memory.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/persistence/database"
	"github.com/SocialGouv/champollion-go/pkg/config"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is a string key-value store. Concurrent writers are last-write-wins.
type Store interface {
	// Get returns the value and true, or false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes every entry or none of them.
	SetMany(ctx context.Context, entries map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// New opens the backend selected by cfg.
func New(ctx context.Context, cfg *config.Config, logger *logging.ChanneledLogger) (Store, error) {
	switch cfg.KVBackend {
	case config.BackendMemory:
		logger.Database().Info("Using in-memory correction store")
		return NewMemoryStore(), nil
	case config.BackendRedis:
		store, err := NewRedisStore(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, fmt.Errorf("kv: open redis: %w", err)
		}
		return store, nil
	case config.BackendSQLite, config.BackendLibSQL:
		db, err := database.Open(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("kv: open %s: %w", cfg.KVBackend, err)
		}
		return NewSQLStore(db, logger), nil
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.KVBackend)
	}
}

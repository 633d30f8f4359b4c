package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/persistence/database"
)

// SQLStore stores entries in the kv_entries table of a SQLite or libsql database.
type SQLStore struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLStore wraps an open connection whose schema already exists.
func NewSQLStore(db *database.DB, logger *logging.ChanneledLogger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	const query = `SELECT value FROM kv_entries WHERE key = ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	database.CheckAndLogSlowQuery(s.logger, s.db.SlowThreshold, query, time.Since(start), "")
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

const upsertQuery = `INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, upsertQuery, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	database.CheckAndLogSlowQuery(s.logger, s.db.SlowThreshold, upsertQuery, time.Since(start), "")
	return err
}

// SetMany upserts entries in a single transaction.
func (s *SQLStore) SetMany(ctx context.Context, entries map[string]string) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("kv: prepare upsert: %w", err)
	}
	defer stmt.Close()

	updatedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for key, value := range entries {
		if _, err := stmt.ExecContext(ctx, key, value, updatedAt); err != nil {
			return fmt.Errorf("kv: upsert %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kv: commit: %w", err)
	}
	database.CheckAndLogSlowQuery(s.logger, s.db.SlowThreshold, upsertQuery, time.Since(start), "")
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	query := `DELETE FROM kv_entries WHERE key IN (?` + strings.Repeat(", ?", len(keys)-1) + `)`

	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	database.CheckAndLogSlowQuery(s.logger, s.db.SlowThreshold, query, time.Since(start), "")
	return err
}

func (s *SQLStore) Close() error {
	s.logger.Database().Info("Closing correction store", "driverName", s.db.DriverName)
	return s.db.Close()
}

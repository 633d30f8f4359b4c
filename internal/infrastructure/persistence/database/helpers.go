package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
)

// TestConnection runs a trivial query against db
func TestConnection(db *sql.DB) error {
	var result int
	if err := db.QueryRow("SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("connection test query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: %d", result)
	}
	return nil
}

// CheckAndLogSlowQuery logs query on the slow query channel when duration
// exceeds threshold
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, threshold time.Duration, query string, duration time.Duration, siret string) {
	if threshold > 0 && duration > threshold {
		logger.LogSlowQuery(query, duration, siret)
	}
}

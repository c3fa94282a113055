package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS feed_status (
        feed_name        TEXT NOT NULL,
        cob_date         DATE NOT NULL,
        status           TEXT NOT NULL,
        record_count     BIGINT NOT NULL DEFAULT 0,
        completeness_pct NUMERIC(6,2) NOT NULL DEFAULT 0,
        expected_time    TEXT NOT NULL DEFAULT '',
        last_checked     TIMESTAMPTZ NOT NULL,
        error            TEXT,
        PRIMARY KEY (feed_name, cob_date)
    );`,
	`CREATE TABLE IF NOT EXISTS alert_log (
        id         BIGSERIAL PRIMARY KEY,
        feed_name  TEXT NOT NULL,
        cob_date   DATE NOT NULL,
        channel    TEXT NOT NULL,
        outcome    TEXT NOT NULL,
        message    TEXT NOT NULL DEFAULT '',
        error      TEXT,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_alert_log_created_at ON alert_log (created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_feed_status_cob_date ON feed_status (cob_date);`,
}

// EnsureSchema creates the monitoring tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

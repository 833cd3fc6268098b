package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS product_snapshot (
		id           UUID PRIMARY KEY,
		url          TEXT        NOT NULL,
		site         TEXT        NOT NULL,
		name         TEXT        NOT NULL DEFAULT '',
		price        TEXT        NOT NULL DEFAULT '',
		in_stock     BOOLEAN     NOT NULL DEFAULT FALSE,
		variant_count INTEGER    NOT NULL DEFAULT 0,
		record       JSONB       NOT NULL,
		extracted_at TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_snapshot_url_extracted
		ON product_snapshot (url, extracted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT        NOT NULL,
		aggregate_id   TEXT        NOT NULL,
		event_type     TEXT        NOT NULL,
		payload        JSONB       NOT NULL,
		target_stream  TEXT        NOT NULL,
		status         TEXT        NOT NULL,
		retry_count    INTEGER     NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending
		ON outbox_event (status, next_retry_at)`,
}

// EnsureSchema creates the archive tables when they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema bootstrap. The service treats an unreachable store as a hard
// precondition failure; callers Fatal on error.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stats_events (
		id       BIGSERIAL PRIMARY KEY,
		ts       TIMESTAMPTZ NOT NULL,
		date     TEXT NOT NULL,
		domain   TEXT NOT NULL,
		type     TEXT NOT NULL,
		item     TEXT NOT NULL DEFAULT '',
		referrer TEXT NOT NULL DEFAULT '',
		ip       TEXT NOT NULL DEFAULT '',
		country  TEXT NOT NULL DEFAULT '',
		ua       TEXT NOT NULL DEFAULT '',
		ua_hash  TEXT NOT NULL DEFAULT '',
		UNIQUE (ts, domain, type, item)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stats_events_domain ON stats_events (domain)`,
	`CREATE TABLE IF NOT EXISTS stats_unique (
		date    TEXT NOT NULL,
		domain  TEXT NOT NULL,
		ip      TEXT NOT NULL,
		ua_hash TEXT NOT NULL,
		PRIMARY KEY (date, domain, ip, ua_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS geo_cache (
		ip         TEXT PRIMARY KEY,
		country    TEXT NOT NULL DEFAULT '',
		city       TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

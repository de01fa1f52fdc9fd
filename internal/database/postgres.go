package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 25

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// RunMigrations applies the schema. Statements are idempotent so restarts
// are safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS streamers (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			twitch_user_id TEXT UNIQUE NOT NULL,
			twitch_username TEXT NOT NULL,
			overlay_uuid UUID UNIQUE NOT NULL DEFAULT gen_random_uuid(),
			api_key TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS factions (
			id UUID PRIMARY KEY,
			streamer_id UUID NOT NULL REFERENCES streamers(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			name TEXT NOT NULL,
			color_hex TEXT NOT NULL DEFAULT '',
			sort_order INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (streamer_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS stream_sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			streamer_id UUID NOT NULL REFERENCES streamers(id) ON DELETE CASCADE,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ,
			last_decay_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_active
			ON stream_sessions(streamer_id, started_at DESC) WHERE ended_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS session_faction_meters (
			session_id UUID NOT NULL REFERENCES stream_sessions(id) ON DELETE CASCADE,
			faction_id UUID NOT NULL REFERENCES factions(id),
			meter BIGINT NOT NULL DEFAULT 0 CHECK (meter >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, faction_id)
		)`,
		`CREATE TABLE IF NOT EXISTS cooldowns (
			session_id UUID NOT NULL,
			action TEXT NOT NULL,
			user_key TEXT NOT NULL,
			last_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, action, user_key)
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_receipts (
			streamer_id UUID NOT NULL,
			event_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (streamer_id, event_id)
		)`,
		`CREATE TABLE IF NOT EXISTS event_log (
			id BIGSERIAL PRIMARY KEY,
			streamer_id UUID NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_streamer
			ON event_log(streamer_id, id DESC)`,
		`CREATE TABLE IF NOT EXISTS chat_commands (
			streamer_id UUID NOT NULL REFERENCES streamers(id) ON DELETE CASCADE,
			kind TEXT NOT NULL DEFAULT 'hype',
			trigger TEXT NOT NULL,
			aliases TEXT[] NOT NULL DEFAULT '{}',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			cooldown_seconds INT NOT NULL DEFAULT 60,
			max_delta BIGINT NOT NULL DEFAULT 100,
			default_delta BIGINT NOT NULL DEFAULT 10,
			PRIMARY KEY (streamer_id, trigger)
		)`,
		`CREATE TABLE IF NOT EXISTS streamer_settings (
			streamer_id UUID PRIMARY KEY REFERENCES streamers(id) ON DELETE CASCADE,
			decay_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			decay_percent_per_minute FLOAT8 NOT NULL DEFAULT 2
				CHECK (decay_percent_per_minute >= 0 AND decay_percent_per_minute <= 100),
			decay_min_clamp BIGINT NOT NULL DEFAULT 0,
			policy_mode TEXT NOT NULL DEFAULT 'leader',
			policy_default_faction TEXT NOT NULL DEFAULT '',
			policy_event_deltas JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}

	slog.Info("database migrations completed")
	return nil
}

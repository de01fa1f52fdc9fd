package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

// ConfigRepo resolves per-streamer runtime configuration, falling back to
// built-in defaults for streamers that never touched their settings.
type ConfigRepo struct {
	pool *pgxpool.Pool
}

func NewConfigRepo(pool *pgxpool.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool}
}

func (r *ConfigRepo) Commands(ctx context.Context, streamerID uuid.UUID) ([]domain.ChatCommand, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kind, trigger, aliases, enabled, cooldown_seconds, max_delta, default_delta
		FROM chat_commands
		WHERE streamer_id = $1
		ORDER BY trigger`, streamerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []domain.ChatCommand
	for rows.Next() {
		var c domain.ChatCommand
		if err := rows.Scan(&c.Kind, &c.Trigger, &c.Aliases, &c.Enabled, &c.CooldownSeconds, &c.MaxDelta, &c.DefaultDelta); err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(commands) == 0 {
		return domain.DefaultCommands(), nil
	}
	return commands, nil
}

func (r *ConfigRepo) UpsertCommand(ctx context.Context, streamerID uuid.UUID, c domain.ChatCommand) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_commands (streamer_id, kind, trigger, aliases, enabled, cooldown_seconds, max_delta, default_delta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (streamer_id, trigger) DO UPDATE SET
			kind = EXCLUDED.kind,
			aliases = EXCLUDED.aliases,
			enabled = EXCLUDED.enabled,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			max_delta = EXCLUDED.max_delta,
			default_delta = EXCLUDED.default_delta`,
		streamerID, c.Kind, c.Trigger, c.Aliases, c.Enabled, c.CooldownSeconds, c.MaxDelta, c.DefaultDelta)
	return err
}

func (r *ConfigRepo) Decay(ctx context.Context, streamerID uuid.UUID) (domain.DecayConfig, error) {
	var cfg domain.DecayConfig
	err := r.pool.QueryRow(ctx, `
		SELECT decay_enabled, decay_percent_per_minute, decay_min_clamp
		FROM streamer_settings
		WHERE streamer_id = $1`, streamerID).
		Scan(&cfg.Enabled, &cfg.PercentPerMinute, &cfg.MinClampAbs)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultDecayConfig(), nil
	}
	if err != nil {
		return domain.DecayConfig{}, err
	}
	return cfg, nil
}

func (r *ConfigRepo) SaveDecay(ctx context.Context, streamerID uuid.UUID, cfg domain.DecayConfig) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO streamer_settings (streamer_id, decay_enabled, decay_percent_per_minute, decay_min_clamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (streamer_id) DO UPDATE SET
			decay_enabled = EXCLUDED.decay_enabled,
			decay_percent_per_minute = EXCLUDED.decay_percent_per_minute,
			decay_min_clamp = EXCLUDED.decay_min_clamp,
			updated_at = NOW()`,
		streamerID, cfg.Enabled, cfg.PercentPerMinute, cfg.MinClampAbs)
	return err
}

func (r *ConfigRepo) WebhookPolicy(ctx context.Context, streamerID uuid.UUID) (domain.WebhookPolicy, error) {
	var p domain.WebhookPolicy
	err := r.pool.QueryRow(ctx, `
		SELECT policy_mode, policy_default_faction, policy_event_deltas
		FROM streamer_settings
		WHERE streamer_id = $1`, streamerID).
		Scan(&p.Mode, &p.DefaultFactionKey, &p.EventDeltas)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WebhookPolicy{Mode: domain.PolicyLeader}, nil
	}
	if err != nil {
		return domain.WebhookPolicy{}, err
	}
	if p.Mode == "" {
		p.Mode = domain.PolicyLeader
	}
	return p, nil
}

func (r *ConfigRepo) SaveWebhookPolicy(ctx context.Context, streamerID uuid.UUID, p domain.WebhookPolicy) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO streamer_settings (streamer_id, policy_mode, policy_default_faction, policy_event_deltas)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (streamer_id) DO UPDATE SET
			policy_mode = EXCLUDED.policy_mode,
			policy_default_faction = EXCLUDED.policy_default_faction,
			policy_event_deltas = EXCLUDED.policy_event_deltas,
			updated_at = NOW()`,
		streamerID, p.Mode, p.DefaultFactionKey, p.EventDeltas)
	return err
}

package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CooldownRepo persists cooldown marks. CheckAndTouch is a single upsert
// whose conditional DO UPDATE makes it race-safe without a transaction.
type CooldownRepo struct {
	pool *pgxpool.Pool
}

func NewCooldownRepo(pool *pgxpool.Pool) *CooldownRepo {
	return &CooldownRepo{pool: pool}
}

func (r *CooldownRepo) CheckAndTouch(ctx context.Context, sessionID uuid.UUID, action, userKey string, window time.Duration, now time.Time) (bool, error) {
	cutoff := now.Add(-window)
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO cooldowns (session_id, action, user_key, last_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, action, user_key) DO UPDATE
			SET last_at = EXCLUDED.last_at
			WHERE cooldowns.last_at <= $5`,
		sessionID, action, userKey, now, cutoff)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReceiptRepo persists idempotency receipts keyed by (streamer, event id).
// Under concurrent duplicate deliveries exactly one insert wins.
type ReceiptRepo struct {
	pool *pgxpool.Pool
}

func NewReceiptRepo(pool *pgxpool.Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

func (r *ReceiptRepo) Claim(ctx context.Context, streamerID uuid.UUID, eventID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_receipts (streamer_id, event_id)
		VALUES ($1, $2)
		ON CONFLICT (streamer_id, event_id) DO NOTHING`, streamerID, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

package database

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

type StreamerRepo struct {
	pool *pgxpool.Pool
}

func NewStreamerRepo(pool *pgxpool.Pool) *StreamerRepo {
	return &StreamerRepo{pool: pool}
}

const streamerColumns = `id, twitch_user_id, twitch_username, overlay_uuid, api_key, created_at, updated_at`

func (r *StreamerRepo) scanStreamer(row pgx.Row) (*domain.Streamer, error) {
	var s domain.Streamer
	err := row.Scan(&s.ID, &s.TwitchUserID, &s.TwitchUsername, &s.OverlayUUID, &s.APIKey, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StreamerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Streamer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE id = $1`, id)
	return r.scanStreamer(row)
}

func (r *StreamerRepo) GetByTwitchUserID(ctx context.Context, twitchUserID string) (*domain.Streamer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE twitch_user_id = $1`, twitchUserID)
	return r.scanStreamer(row)
}

func (r *StreamerRepo) GetByOverlayUUID(ctx context.Context, overlayUUID uuid.UUID) (*domain.Streamer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE overlay_uuid = $1`, overlayUUID)
	return r.scanStreamer(row)
}

func (r *StreamerRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Streamer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE api_key = $1`, apiKey)
	return r.scanStreamer(row)
}

func (r *StreamerRepo) Upsert(ctx context.Context, twitchUserID, twitchUsername string) (*domain.Streamer, error) {
	apiKey, err := newAPIKey()
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO streamers (twitch_user_id, twitch_username, api_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (twitch_user_id) DO UPDATE SET
			twitch_username = EXCLUDED.twitch_username,
			updated_at = NOW()
		RETURNING `+streamerColumns,
		twitchUserID, twitchUsername, apiKey)
	return r.scanStreamer(row)
}

func (r *StreamerRepo) RotateOverlayUUID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var overlayUUID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		UPDATE streamers SET overlay_uuid = gen_random_uuid(), updated_at = NOW()
		WHERE id = $1
		RETURNING overlay_uuid`, id).Scan(&overlayUUID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return overlayUUID, nil
}

func (r *StreamerRepo) RotateAPIKey(ctx context.Context, id uuid.UUID) (string, error) {
	apiKey, err := newAPIKey()
	if err != nil {
		return "", err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE streamers SET api_key = $2, updated_at = NOW() WHERE id = $1`, id, apiKey)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", domain.ErrStreamerNotFound
	}
	return apiKey, nil
}

func newAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

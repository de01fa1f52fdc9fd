package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) GetActive(ctx context.Context, streamerID uuid.UUID) (*domain.StreamSession, error) {
	var s domain.StreamSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, streamer_id, started_at, ended_at, last_decay_at
		FROM stream_sessions
		WHERE streamer_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1`, streamerID).
		Scan(&s.ID, &s.StreamerID, &s.StartedAt, &s.EndedAt, &s.LastDecayAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) CreateSession(ctx context.Context, streamerID uuid.UUID) (*domain.StreamSession, error) {
	var s domain.StreamSession
	err := r.pool.QueryRow(ctx, `
		INSERT INTO stream_sessions (streamer_id)
		VALUES ($1)
		RETURNING id, streamer_id, started_at, ended_at, last_decay_at`, streamerID).
		Scan(&s.ID, &s.StreamerID, &s.StartedAt, &s.EndedAt, &s.LastDecayAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) EndSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE stream_sessions SET ended_at = NOW()
		WHERE id = $1 AND ended_at IS NULL`, sessionID)
	return err
}

func (r *SessionRepo) EnsureMeters(ctx context.Context, sessionID uuid.UUID, factionIDs []uuid.UUID) error {
	if len(factionIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_faction_meters (session_id, faction_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT (session_id, faction_id) DO NOTHING`, sessionID, factionIDs)
	return err
}

// AddMeterDelta is the single meter mutation path. GREATEST keeps the
// meter >= 0 invariant inside one statement, so concurrent writers never
// observe or produce a negative value.
func (r *SessionRepo) AddMeterDelta(ctx context.Context, sessionID, factionID uuid.UUID, delta int64) (int64, error) {
	var meter int64
	err := r.pool.QueryRow(ctx, `
		UPDATE session_faction_meters
		SET meter = GREATEST(0, meter + $3), updated_at = NOW()
		WHERE session_id = $1 AND faction_id = $2
		RETURNING meter`, sessionID, factionID, delta).Scan(&meter)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrUnknownFaction
	}
	if err != nil {
		return 0, err
	}
	return meter, nil
}

func (r *SessionRepo) ListMeters(ctx context.Context, sessionID uuid.UUID) ([]domain.MeterRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT f.id, f.key, f.name, f.color_hex, f.sort_order, m.meter
		FROM session_faction_meters m
		JOIN factions f ON f.id = m.faction_id
		WHERE m.session_id = $1 AND f.is_active
		ORDER BY f.sort_order, f.key`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meters []domain.MeterRow
	for rows.Next() {
		var m domain.MeterRow
		if err := rows.Scan(&m.FactionID, &m.FactionKey, &m.Name, &m.ColorHex, &m.SortOrder, &m.Meter); err != nil {
			return nil, err
		}
		meters = append(meters, m)
	}
	return meters, rows.Err()
}

// ScaleMeters applies one decay step to every meter of a session in a
// single statement. Rows whose value would not change are left untouched
// so their updated_at stays meaningful.
func (r *SessionRepo) ScaleMeters(ctx context.Context, sessionID uuid.UUID, factor float64, minClampAbs int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE session_faction_meters
		SET meter = CASE
				WHEN $3::bigint > 0 AND ROUND(meter * $2::float8) < $3::bigint THEN 0
				ELSE ROUND(meter * $2::float8)::bigint
			END,
			updated_at = NOW()
		WHERE session_id = $1
		  AND meter <> CASE
				WHEN $3::bigint > 0 AND ROUND(meter * $2::float8) < $3::bigint THEN 0
				ELSE ROUND(meter * $2::float8)::bigint
			END`, sessionID, factor, minClampAbs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepo) ListAllActive(ctx context.Context) ([]domain.StreamSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, streamer_id, started_at, ended_at, last_decay_at
		FROM stream_sessions
		WHERE ended_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.StreamSession
	for rows.Next() {
		var s domain.StreamSession
		if err := rows.Scan(&s.ID, &s.StreamerID, &s.StartedAt, &s.EndedAt, &s.LastDecayAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) SetLastDecayAt(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE stream_sessions SET last_decay_at = $2 WHERE id = $1`, sessionID, at)
	return err
}

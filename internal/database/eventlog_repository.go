package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

type EventLogRepo struct {
	pool *pgxpool.Pool
}

func NewEventLogRepo(pool *pgxpool.Pool) *EventLogRepo {
	return &EventLogRepo{pool: pool}
}

func (r *EventLogRepo) Append(ctx context.Context, entry *domain.EventLogEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO event_log (streamer_id, type, source, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		entry.StreamerID, entry.Type, entry.Source, entry.Payload).
		Scan(&entry.ID, &entry.CreatedAt)
}

func (r *EventLogRepo) ListRecent(ctx context.Context, streamerID uuid.UUID, limit int) ([]domain.EventLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, streamer_id, type, source, payload, created_at
		FROM event_log
		WHERE streamer_id = $1
		ORDER BY id DESC
		LIMIT $2`, streamerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.EventLogEntry
	for rows.Next() {
		var e domain.EventLogEntry
		if err := rows.Scan(&e.ID, &e.StreamerID, &e.Type, &e.Source, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

type FactionRepo struct {
	pool *pgxpool.Pool
}

func NewFactionRepo(pool *pgxpool.Pool) *FactionRepo {
	return &FactionRepo{pool: pool}
}

func (r *FactionRepo) ListActive(ctx context.Context, streamerID uuid.UUID) ([]domain.Faction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, streamer_id, key, name, color_hex, sort_order, is_active, created_at
		FROM factions
		WHERE streamer_id = $1 AND is_active
		ORDER BY sort_order, key`, streamerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factions []domain.Faction
	for rows.Next() {
		var f domain.Faction
		if err := rows.Scan(&f.ID, &f.StreamerID, &f.Key, &f.Name, &f.ColorHex, &f.SortOrder, &f.IsActive, &f.CreatedAt); err != nil {
			return nil, err
		}
		factions = append(factions, f)
	}
	return factions, rows.Err()
}

func (r *FactionRepo) GetByKey(ctx context.Context, streamerID uuid.UUID, key string) (*domain.Faction, error) {
	var f domain.Faction
	err := r.pool.QueryRow(ctx, `
		SELECT id, streamer_id, key, name, color_hex, sort_order, is_active, created_at
		FROM factions
		WHERE streamer_id = $1 AND key = $2`, streamerID, key).
		Scan(&f.ID, &f.StreamerID, &f.Key, &f.Name, &f.ColorHex, &f.SortOrder, &f.IsActive, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FactionRepo) Create(ctx context.Context, f *domain.Faction) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO factions (id, streamer_id, key, name, color_hex, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		f.ID, f.StreamerID, f.Key, f.Name, f.ColorHex, f.SortOrder).Scan(&f.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrFactionExists
	}
	if err != nil {
		return err
	}
	f.IsActive = true
	return nil
}

func (r *FactionRepo) Update(ctx context.Context, f *domain.Faction) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE factions SET name = $3, color_hex = $4, sort_order = $5
		WHERE streamer_id = $1 AND key = $2`,
		f.StreamerID, f.Key, f.Name, f.ColorHex, f.SortOrder)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownFaction
	}
	return nil
}

func (r *FactionRepo) SetActive(ctx context.Context, streamerID uuid.UUID, key string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE factions SET is_active = $3
		WHERE streamer_id = $1 AND key = $2`, streamerID, key, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownFaction
	}
	return nil
}

func (r *FactionRepo) CountActive(ctx context.Context, streamerID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM factions WHERE streamer_id = $1 AND is_active`, streamerID).Scan(&count)
	return count, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

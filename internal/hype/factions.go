package hype

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/errors"
)

const (
	// MinFactions and MaxFactions bound the active faction count per streamer.
	MinFactions = 2
	MaxFactions = 10
)

var factionKeyPattern = regexp.MustCompile(`^[A-Z0-9_]{1,24}$`)

// FactionService manages the per-streamer faction roster. Deletion is soft:
// deactivation keeps meter rows and event log history intact, and is blocked
// once the roster would fall below the minimum.
type FactionService struct {
	repo domain.FactionRepository
}

func NewFactionService(repo domain.FactionRepository) *FactionService {
	return &FactionService{repo: repo}
}

// List returns the streamer's active factions in sort order.
func (s *FactionService) List(ctx context.Context, streamerID uuid.UUID) ([]domain.Faction, error) {
	return s.repo.ListActive(ctx, streamerID)
}

// Create validates and adds a faction.
func (s *FactionService) Create(ctx context.Context, streamerID uuid.UUID, key, name, colorHex string, sortOrder int) (*domain.Faction, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if !factionKeyPattern.MatchString(key) {
		return nil, errors.ValidationError("faction key must match ^[A-Z0-9_]{1,24}$").WithContext("key", key)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("faction name is required")
	}
	if colorHex != "" && !isHexColor(colorHex) {
		return nil, errors.ValidationError("color must be a hex color like #FF8800").WithContext("color", colorHex)
	}

	count, err := s.repo.CountActive(ctx, streamerID)
	if err != nil {
		return nil, err
	}
	if count >= MaxFactions {
		return nil, errors.ConflictError("faction limit reached").
			WithCause(domain.ErrFactionLimit).WithContext("max", MaxFactions)
	}
	existing, err := s.repo.GetByKey(ctx, streamerID, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.ConflictError("faction key already exists").
			WithCause(domain.ErrFactionExists).WithContext("key", key)
	}

	f := &domain.Faction{
		ID:         uuid.New(),
		StreamerID: streamerID,
		Key:        key,
		Name:       name,
		ColorHex:   colorHex,
		SortOrder:  sortOrder,
		IsActive:   true,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Get returns one active faction by key.
func (s *FactionService) Get(ctx context.Context, streamerID uuid.UUID, key string) (*domain.Faction, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	existing, err := s.repo.GetByKey(ctx, streamerID, key)
	if err != nil {
		return nil, err
	}
	if existing == nil || !existing.IsActive {
		return nil, errors.NotFoundError("faction not found").WithContext("key", key)
	}
	return existing, nil
}

// Save persists display-field changes to an existing faction.
func (s *FactionService) Save(ctx context.Context, f *domain.Faction) (*domain.Faction, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return nil, errors.ValidationError("faction name is required")
	}
	f.Name = name
	if f.ColorHex != "" && !isHexColor(f.ColorHex) {
		return nil, errors.ValidationError("color must be a hex color like #FF8800").WithContext("color", f.ColorHex)
	}
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Deactivate soft-deletes a faction, refusing to drop below the minimum.
func (s *FactionService) Deactivate(ctx context.Context, streamerID uuid.UUID, key string) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	existing, err := s.repo.GetByKey(ctx, streamerID, key)
	if err != nil {
		return err
	}
	if existing == nil || !existing.IsActive {
		return errors.NotFoundError("faction not found").WithContext("key", key)
	}

	count, err := s.repo.CountActive(ctx, streamerID)
	if err != nil {
		return err
	}
	if count <= MinFactions {
		return errors.ConflictError("cannot delete below the minimum faction count").
			WithCause(domain.ErrFactionMinimum).WithContext("min", MinFactions)
	}

	return s.repo.SetActive(ctx, streamerID, key, false)
}

// SeedDefaults creates the starter factions for a streamer with none. Safe
// to call on every login.
func (s *FactionService) SeedDefaults(ctx context.Context, streamerID uuid.UUID) error {
	count, err := s.repo.CountActive(ctx, streamerID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []struct {
		key, name, color string
	}{
		{"ORDER", "Order", "#4FC3F7"},
		{"CHAOS", "Chaos", "#EF5350"},
	}
	for i, d := range defaults {
		f := &domain.Faction{
			ID:         uuid.New(),
			StreamerID: streamerID,
			Key:        d.key,
			Name:       d.name,
			ColorHex:   d.color,
			SortOrder:  i,
			IsActive:   true,
		}
		if err := s.repo.Create(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

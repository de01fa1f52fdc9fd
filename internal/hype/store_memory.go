package hype

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

// MemoryStore is an in-memory implementation of every repository interface
// plus the config provider. It backs unit tests and local development
// without Postgres. All operations that must be atomic against the real
// store are serialized by a single mutex here.
type MemoryStore struct {
	mu    sync.Mutex
	clock clockwork.Clock

	streamers map[uuid.UUID]*domain.Streamer
	factions  map[uuid.UUID][]*domain.Faction // by streamer
	sessions  map[uuid.UUID]*domain.StreamSession
	meters    map[uuid.UUID]map[uuid.UUID]int64 // session -> faction -> meter
	cooldowns map[string]time.Time
	receipts  map[string]struct{}
	log       []domain.EventLogEntry

	CommandTable map[uuid.UUID][]domain.ChatCommand
	DecayConfigs map[uuid.UUID]domain.DecayConfig
	Policies     map[uuid.UUID]domain.WebhookPolicy
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:        clock,
		streamers:    make(map[uuid.UUID]*domain.Streamer),
		factions:     make(map[uuid.UUID][]*domain.Faction),
		sessions:     make(map[uuid.UUID]*domain.StreamSession),
		meters:       make(map[uuid.UUID]map[uuid.UUID]int64),
		cooldowns:    make(map[string]time.Time),
		receipts:     make(map[string]struct{}),
		CommandTable: make(map[uuid.UUID][]domain.ChatCommand),
		DecayConfigs: make(map[uuid.UUID]domain.DecayConfig),
		Policies:     make(map[uuid.UUID]domain.WebhookPolicy),
	}
}

// --- StreamerRepository ---

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streamers[id]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, domain.ErrStreamerNotFound
}

func (s *MemoryStore) GetByTwitchUserID(_ context.Context, twitchUserID string) (*domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streamers {
		if st.TwitchUserID == twitchUserID {
			cp := *st
			return &cp, nil
		}
	}
	return nil, domain.ErrStreamerNotFound
}

func (s *MemoryStore) GetByOverlayUUID(_ context.Context, overlayUUID uuid.UUID) (*domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streamers {
		if st.OverlayUUID == overlayUUID {
			cp := *st
			return &cp, nil
		}
	}
	return nil, domain.ErrStreamerNotFound
}

func (s *MemoryStore) GetByAPIKey(_ context.Context, apiKey string) (*domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streamers {
		if st.APIKey == apiKey {
			cp := *st
			return &cp, nil
		}
	}
	return nil, domain.ErrStreamerNotFound
}

func (s *MemoryStore) Upsert(_ context.Context, twitchUserID, twitchUsername string) (*domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streamers {
		if st.TwitchUserID == twitchUserID {
			st.TwitchUsername = twitchUsername
			st.UpdatedAt = s.clock.Now()
			cp := *st
			return &cp, nil
		}
	}
	st := &domain.Streamer{
		ID:             uuid.New(),
		TwitchUserID:   twitchUserID,
		TwitchUsername: twitchUsername,
		OverlayUUID:    uuid.New(),
		APIKey:         uuid.NewString(),
		CreatedAt:      s.clock.Now(),
		UpdatedAt:      s.clock.Now(),
	}
	s.streamers[st.ID] = st
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) RotateOverlayUUID(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streamers[id]
	if !ok {
		return uuid.Nil, domain.ErrStreamerNotFound
	}
	st.OverlayUUID = uuid.New()
	return st.OverlayUUID, nil
}

func (s *MemoryStore) RotateAPIKey(_ context.Context, id uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streamers[id]
	if !ok {
		return "", domain.ErrStreamerNotFound
	}
	st.APIKey = uuid.NewString()
	return st.APIKey, nil
}

// --- FactionRepository ---

func (s *MemoryStore) ListActive(_ context.Context, streamerID uuid.UUID) ([]domain.Faction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Faction
	for _, f := range s.factions[streamerID] {
		if f.IsActive {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *MemoryStore) GetByKey(_ context.Context, streamerID uuid.UUID, key string) (*domain.Faction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = strings.ToUpper(key)
	for _, f := range s.factions[streamerID] {
		if f.Key == key {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Create(_ context.Context, f *domain.Faction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	cp.CreatedAt = s.clock.Now()
	s.factions[f.StreamerID] = append(s.factions[f.StreamerID], &cp)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, f *domain.Faction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.factions[f.StreamerID] {
		if existing.ID == f.ID {
			cp := *f
			s.factions[f.StreamerID][i] = &cp
			return nil
		}
	}
	return domain.ErrUnknownFaction
}

func (s *MemoryStore) SetActive(_ context.Context, streamerID uuid.UUID, key string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = strings.ToUpper(key)
	for _, f := range s.factions[streamerID] {
		if f.Key == key {
			f.IsActive = active
			return nil
		}
	}
	return domain.ErrUnknownFaction
}

func (s *MemoryStore) CountActive(_ context.Context, streamerID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, f := range s.factions[streamerID] {
		if f.IsActive {
			count++
		}
	}
	return count, nil
}

// --- SessionRepository ---

func (s *MemoryStore) GetActive(_ context.Context, streamerID uuid.UUID) (*domain.StreamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.StreamSession
	for _, sess := range s.sessions {
		if sess.StreamerID != streamerID || sess.EndedAt != nil {
			continue
		}
		if latest == nil || sess.StartedAt.After(latest.StartedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, streamerID uuid.UUID) (*domain.StreamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &domain.StreamSession{
		ID:         uuid.New(),
		StreamerID: streamerID,
		StartedAt:  s.clock.Now(),
	}
	s.sessions[sess.ID] = sess
	s.meters[sess.ID] = make(map[uuid.UUID]int64)
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) EnsureMeters(_ context.Context, sessionID uuid.UUID, factionIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meters[sessionID]
	if m == nil {
		m = make(map[uuid.UUID]int64)
		s.meters[sessionID] = m
	}
	for _, id := range factionIDs {
		if _, ok := m[id]; !ok {
			m[id] = 0
		}
	}
	return nil
}

func (s *MemoryStore) AddMeterDelta(_ context.Context, sessionID, factionID uuid.UUID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meters[sessionID]
	next := m[factionID] + delta
	if next < 0 {
		next = 0
	}
	m[factionID] = next
	return next, nil
}

func (s *MemoryStore) ListMeters(_ context.Context, sessionID uuid.UUID) ([]domain.MeterRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil {
		return nil, nil
	}
	var rows []domain.MeterRow
	for _, f := range s.factions[sess.StreamerID] {
		meter, ok := s.meters[sessionID][f.ID]
		if !ok || !f.IsActive {
			continue
		}
		rows = append(rows, domain.MeterRow{
			FactionID:  f.ID,
			FactionKey: f.Key,
			Name:       f.Name,
			ColorHex:   f.ColorHex,
			SortOrder:  f.SortOrder,
			Meter:      meter,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SortOrder != rows[j].SortOrder {
			return rows[i].SortOrder < rows[j].SortOrder
		}
		return rows[i].FactionKey < rows[j].FactionKey
	})
	return rows, nil
}

func (s *MemoryStore) ScaleMeters(_ context.Context, sessionID uuid.UUID, factor float64, minClampAbs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for id, meter := range s.meters[sessionID] {
		next := int64(math.Round(float64(meter) * factor))
		if minClampAbs > 0 && next < minClampAbs && -next < minClampAbs {
			next = 0
		}
		if next != meter {
			s.meters[sessionID][id] = next
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) ListAllActive(_ context.Context) ([]domain.StreamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StreamSession
	for _, sess := range s.sessions {
		if sess.EndedAt == nil {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) SetLastDecayAt(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil {
		return nil
	}
	t := at
	sess.LastDecayAt = &t
	return nil
}

// --- CooldownRepository ---

func (s *MemoryStore) CheckAndTouch(_ context.Context, sessionID uuid.UUID, action, userKey string, window time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionID.String() + "|" + action + "|" + userKey
	lastAt, exists := s.cooldowns[key]
	if exists && lastAt.After(now.Add(-window)) {
		return false, nil
	}
	s.cooldowns[key] = now
	return true, nil
}

// --- ReceiptRepository ---

func (s *MemoryStore) Claim(_ context.Context, streamerID uuid.UUID, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := streamerID.String() + "|" + eventID
	if _, seen := s.receipts[key]; seen {
		return false, nil
	}
	s.receipts[key] = struct{}{}
	return true, nil
}

// --- EventLogRepository ---

func (s *MemoryStore) Append(_ context.Context, entry *domain.EventLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	cp.ID = int64(len(s.log) + 1)
	s.log = append(s.log, cp)
	return nil
}

func (s *MemoryStore) ListRecent(_ context.Context, streamerID uuid.UUID, limit int) ([]domain.EventLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EventLogEntry
	for i := len(s.log) - 1; i >= 0 && len(out) < limit; i-- {
		if s.log[i].StreamerID == streamerID {
			out = append(out, s.log[i])
		}
	}
	return out, nil
}

// EventLog returns a copy of all appended entries, oldest first.
func (s *MemoryStore) EventLog() []domain.EventLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventLogEntry, len(s.log))
	copy(out, s.log)
	return out
}

// --- ConfigProvider ---

func (s *MemoryStore) Commands(_ context.Context, streamerID uuid.UUID) ([]domain.ChatCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmds, ok := s.CommandTable[streamerID]; ok {
		return cmds, nil
	}
	return domain.DefaultCommands(), nil
}

func (s *MemoryStore) Decay(_ context.Context, streamerID uuid.UUID) (domain.DecayConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.DecayConfigs[streamerID]; ok {
		return cfg, nil
	}
	return domain.DefaultDecayConfig(), nil
}

func (s *MemoryStore) WebhookPolicy(_ context.Context, streamerID uuid.UUID) (domain.WebhookPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.Policies[streamerID]; ok {
		return p, nil
	}
	return domain.WebhookPolicy{Mode: domain.PolicyLeader}, nil
}

func (s *MemoryStore) SaveDecay(_ context.Context, streamerID uuid.UUID, cfg domain.DecayConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DecayConfigs[streamerID] = cfg
	return nil
}

func (s *MemoryStore) SaveWebhookPolicy(_ context.Context, streamerID uuid.UUID, p domain.WebhookPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Policies[streamerID] = p
	return nil
}

func (s *MemoryStore) UpsertCommand(_ context.Context, streamerID uuid.UUID, c domain.ChatCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds := s.CommandTable[streamerID]
	for i, existing := range cmds {
		if existing.Trigger == c.Trigger {
			cmds[i] = c
			return nil
		}
	}
	s.CommandTable[streamerID] = append(cmds, c)
	return nil
}

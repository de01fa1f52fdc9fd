package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// --- Model types ---

// Streamer is an authenticated Twitch broadcaster. The OverlayUUID is the
// unguessable handle used by OBS browser sources; the APIKey authenticates
// the generic event API. Both are rotatable.
type Streamer struct {
	ID             uuid.UUID `db:"id"`
	TwitchUserID   string    `db:"twitch_user_id"`
	TwitchUsername string    `db:"twitch_username"`
	OverlayUUID    uuid.UUID `db:"overlay_uuid"`
	APIKey         string    `db:"api_key"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Faction is a named side competing for hype. Keys are uppercase and unique
// per streamer.
type Faction struct {
	ID         uuid.UUID `db:"id" json:"id"`
	StreamerID uuid.UUID `db:"streamer_id" json:"-"`
	Key        string    `db:"key" json:"key"`
	Name       string    `db:"name" json:"name"`
	ColorHex   string    `db:"color_hex" json:"colorHex"`
	SortOrder  int       `db:"sort_order" json:"sortOrder"`
	IsActive   bool      `db:"is_active" json:"isActive"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// StreamSession is one stream's time window. EndedAt == nil means active;
// at most one active session exists per streamer. LastDecayAt == nil means
// the decay loop has not initialized this session yet.
type StreamSession struct {
	ID          uuid.UUID  `db:"id"`
	StreamerID  uuid.UUID  `db:"streamer_id"`
	StartedAt   time.Time  `db:"started_at"`
	EndedAt     *time.Time `db:"ended_at"`
	LastDecayAt *time.Time `db:"last_decay_at"`
}

// SessionFactionMeter is the hot mutable state: one row per (session, faction).
// Invariant: Meter >= 0, enforced by the single mutation path.
type SessionFactionMeter struct {
	SessionID uuid.UUID `db:"session_id"`
	FactionID uuid.UUID `db:"faction_id"`
	Meter     int64     `db:"meter"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MeterRow is a meter joined with its faction's display fields, ordered
// by sort order then key.
type MeterRow struct {
	FactionID  uuid.UUID
	FactionKey string
	Name       string
	ColorHex   string
	SortOrder  int
	Meter      int64
}

// EventSource tags where a meter mutation originated.
type EventSource string

const (
	SourceChat        EventSource = "chat"
	SourceEventSub    EventSource = "eventsub"
	SourceAPI         EventSource = "api"
	SourceDecayExempt EventSource = "decay-exempt"
)

// EventLogEntry is the append-only audit record of a meter mutation.
type EventLogEntry struct {
	ID         int64          `db:"id" json:"id"`
	StreamerID uuid.UUID      `db:"streamer_id" json:"-"`
	Type       string         `db:"type" json:"type"`
	Source     EventSource    `db:"source" json:"source"`
	Payload    map[string]any `db:"payload" json:"payload"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// DecayConfig is the effective per-streamer decay configuration.
type DecayConfig struct {
	Enabled          bool
	PercentPerMinute float64
	MinClampAbs      int64
}

// DefaultDecayConfig returns the decay settings used when a streamer has
// not configured anything.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{Enabled: true, PercentPerMinute: 2, MinClampAbs: 0}
}

// PolicyMode selects how webhook events without an explicit faction pick one.
type PolicyMode string

const (
	// PolicyLeader applies the delta to the faction currently in the lead.
	PolicyLeader PolicyMode = "leader"
	// PolicyDefault always applies the delta to a configured fallback faction.
	PolicyDefault PolicyMode = "default"
)

// WebhookPolicy maps EventSub notification types onto meter deltas.
type WebhookPolicy struct {
	Mode              PolicyMode
	DefaultFactionKey string
	// EventDeltas maps an EventSub subscription type (e.g.
	// "channel.channel_points_custom_reward_redemption.add") to a signed delta.
	// Types absent from the map resolve to no-op.
	EventDeltas map[string]int64
}

// Snapshot is a consistent point-in-time view of a session's meters. It is
// the payload of the "meters" SSE event and the polling endpoint.
type Snapshot struct {
	OK         bool        `json:"ok"`
	StreamerID uuid.UUID   `json:"streamerId"`
	SessionID  uuid.UUID   `json:"sessionId"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Meters     []MeterView `json:"meters"`
}

// MeterView is one faction's meter inside a Snapshot.
type MeterView struct {
	FactionKey string `json:"factionKey"`
	Name       string `json:"name"`
	ColorHex   string `json:"colorHex"`
	Meter      int64  `json:"meter"`
}

// --- Repository interfaces ---

// StreamerRepository abstracts streamer persistence.
type StreamerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Streamer, error)
	GetByTwitchUserID(ctx context.Context, twitchUserID string) (*Streamer, error)
	GetByOverlayUUID(ctx context.Context, overlayUUID uuid.UUID) (*Streamer, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Streamer, error)
	Upsert(ctx context.Context, twitchUserID, twitchUsername string) (*Streamer, error)
	RotateOverlayUUID(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	RotateAPIKey(ctx context.Context, id uuid.UUID) (string, error)
}

// FactionRepository abstracts faction persistence.
type FactionRepository interface {
	ListActive(ctx context.Context, streamerID uuid.UUID) ([]Faction, error)
	GetByKey(ctx context.Context, streamerID uuid.UUID, key string) (*Faction, error)
	Create(ctx context.Context, f *Faction) error
	Update(ctx context.Context, f *Faction) error
	SetActive(ctx context.Context, streamerID uuid.UUID, key string, active bool) error
	CountActive(ctx context.Context, streamerID uuid.UUID) (int, error)
}

// SessionRepository abstracts session and meter persistence. AddMeterDelta
// and ScaleMeters must be single atomic statements: concurrent chat messages
// and decay ticks interleave on the same rows.
type SessionRepository interface {
	// GetActive returns the most recently started session with ended_at null,
	// or nil when the streamer has no open session.
	GetActive(ctx context.Context, streamerID uuid.UUID) (*StreamSession, error)
	CreateSession(ctx context.Context, streamerID uuid.UUID) (*StreamSession, error)
	// EnsureMeters upserts a zero meter row for every given faction.
	EnsureMeters(ctx context.Context, sessionID uuid.UUID, factionIDs []uuid.UUID) error
	// AddMeterDelta applies meter = max(0, meter + delta) atomically and
	// returns the resulting value.
	AddMeterDelta(ctx context.Context, sessionID, factionID uuid.UUID, delta int64) (int64, error)
	ListMeters(ctx context.Context, sessionID uuid.UUID) ([]MeterRow, error)
	// ScaleMeters multiplies every meter by factor (rounded), snapping values
	// below minClampAbs to zero, touching only rows that change. Returns the
	// number of updated rows.
	ScaleMeters(ctx context.Context, sessionID uuid.UUID, factor float64, minClampAbs int64) (int64, error)
	ListAllActive(ctx context.Context) ([]StreamSession, error)
	SetLastDecayAt(ctx context.Context, sessionID uuid.UUID, at time.Time) error
}

// CooldownRepository persists per (session, action, userKey) cooldown marks.
// CheckAndTouch must be race-safe: a single statement that either claims the
// slot (absent or expired) or leaves it untouched.
type CooldownRepository interface {
	CheckAndTouch(ctx context.Context, sessionID uuid.UUID, action, userKey string, window time.Duration, now time.Time) (bool, error)
}

// ReceiptRepository persists idempotency receipts. Claim must be a single
// atomic insert: exactly one caller wins under concurrent duplicates.
type ReceiptRepository interface {
	Claim(ctx context.Context, streamerID uuid.UUID, eventID string) (bool, error)
}

// EventLogRepository is the append-only mutation audit trail.
type EventLogRepository interface {
	Append(ctx context.Context, entry *EventLogEntry) error
	ListRecent(ctx context.Context, streamerID uuid.UUID, limit int) ([]EventLogEntry, error)
}

// ConfigProvider resolves per-streamer runtime configuration. Resolved once
// per incoming message, so implementations may cache.
type ConfigProvider interface {
	Commands(ctx context.Context, streamerID uuid.UUID) ([]ChatCommand, error)
	Decay(ctx context.Context, streamerID uuid.UUID) (DecayConfig, error)
	WebhookPolicy(ctx context.Context, streamerID uuid.UUID) (WebhookPolicy, error)
}

package hype

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/metrics"
)

// Result is the outcome of a successful meter mutation.
type Result struct {
	SessionID  uuid.UUID
	FactionKey string
	Meter      int64
}

// Engine applies signed deltas to faction meters. It is the only component
// allowed to write meter rows; adapters reach it through the guards.
// The engine does not broadcast: callers re-snapshot and broadcast after a
// successful mutation, which lets the decay loop batch many row updates
// into one broadcast per session.
type Engine struct {
	factions domain.FactionRepository
	sessions domain.SessionRepository
	eventLog domain.EventLogRepository
	clock    clockwork.Clock
}

func NewEngine(factions domain.FactionRepository, sessions domain.SessionRepository, eventLog domain.EventLogRepository, clock clockwork.Clock) *Engine {
	return &Engine{factions: factions, sessions: sessions, eventLog: eventLog, clock: clock}
}

// AddHype applies delta to the meter of the faction identified by factionKey
// (case-normalised to uppercase) within the streamer's active session,
// clamped at zero. It appends an event log entry and returns the resulting
// meter value.
//
// Returns domain.ErrUnknownFaction when the key does not exist for the
// streamer; that is a caller bug, not a runtime condition.
func (e *Engine) AddHype(ctx context.Context, streamerID uuid.UUID, factionKey string, delta int64, source domain.EventSource, meta map[string]any) (*Result, error) {
	key := strings.ToUpper(strings.TrimSpace(factionKey))

	faction, err := e.factions.GetByKey(ctx, streamerID, key)
	if err != nil {
		return nil, err
	}
	if faction == nil || !faction.IsActive {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFaction, key)
	}

	session, err := e.GetOrCreateActiveSession(ctx, streamerID)
	if err != nil {
		return nil, err
	}

	meter, err := e.sessions.AddMeterDelta(ctx, session.ID, faction.ID, delta)
	if err != nil {
		return nil, fmt.Errorf("add meter delta: %w", err)
	}

	payload := map[string]any{
		"factionKey": key,
		"delta":      delta,
		"meter":      meter,
	}
	for k, v := range meta {
		payload[k] = v
	}
	entry := &domain.EventLogEntry{
		StreamerID: streamerID,
		Type:       "hype",
		Source:     source,
		Payload:    payload,
		CreatedAt:  e.clock.Now(),
	}
	// The meter row is the source of truth; a failed audit append is logged
	// but does not undo the mutation.
	if err := e.eventLog.Append(ctx, entry); err != nil {
		slog.Error("event log append failed", "streamer_id", streamerID.String(), "error", err)
	}

	metrics.EventsIngestedTotal.WithLabelValues(string(source)).Inc()

	return &Result{SessionID: session.ID, FactionKey: key, Meter: meter}, nil
}

// GetOrCreateActiveSession returns the streamer's open session, creating one
// when none exists. On every call it upserts a zero meter row for each
// currently active faction, so factions created mid-session appear in
// snapshots immediately.
func (e *Engine) GetOrCreateActiveSession(ctx context.Context, streamerID uuid.UUID) (*domain.StreamSession, error) {
	session, err := e.sessions.GetActive(ctx, streamerID)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if session == nil {
		session, err = e.sessions.CreateSession(ctx, streamerID)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		slog.Info("session started", "streamer_id", streamerID.String(), "session_id", session.ID.String())
	}

	factions, err := e.factions.ListActive(ctx, streamerID)
	if err != nil {
		return nil, fmt.Errorf("list factions: %w", err)
	}
	ids := make([]uuid.UUID, len(factions))
	for i, f := range factions {
		ids[i] = f.ID
	}
	if err := e.sessions.EnsureMeters(ctx, session.ID, ids); err != nil {
		return nil, fmt.Errorf("ensure meters: %w", err)
	}

	return session, nil
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/hype"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/metrics"
)

// Engine is the meter engine surface the processor needs.
type Engine interface {
	AddHype(ctx context.Context, streamerID uuid.UUID, factionKey string, delta int64, source domain.EventSource, meta map[string]any) (*hype.Result, error)
	GetOrCreateActiveSession(ctx context.Context, streamerID uuid.UUID) (*domain.StreamSession, error)
}

// Processor runs the complete chat pipeline: command table resolution →
// parse → cooldown → meter engine → snapshot broadcast. Every rejection is
// a silent drop by design (no feedback in chat), counted in metrics.
type Processor struct {
	engine    Engine
	cooldowns *hype.CooldownGuard
	configs   domain.ConfigProvider
	snapshots *hype.SnapshotBuilder
	hub       hype.Broadcaster
	prefix    string
}

func NewProcessor(engine Engine, cooldowns *hype.CooldownGuard, configs domain.ConfigProvider, snapshots *hype.SnapshotBuilder, hub hype.Broadcaster, prefix string) *Processor {
	return &Processor{
		engine:    engine,
		cooldowns: cooldowns,
		configs:   configs,
		snapshots: snapshots,
		hub:       hub,
		prefix:    prefix,
	}
}

// Process handles one chat message for a streamer. Returns true when a
// meter mutation was applied.
func (p *Processor) Process(ctx context.Context, streamerID uuid.UUID, chatterID, chatterName, message string) bool {
	commands, err := p.configs.Commands(ctx, streamerID)
	if err != nil {
		slog.Error("command table lookup failed", "streamer_id", streamerID.String(), "error", err)
		return false
	}

	parsed, ok := Parse(message, p.prefix, commands)
	if !ok {
		metrics.EventsDroppedTotal.WithLabelValues("parse").Inc()
		return false
	}

	session, err := p.engine.GetOrCreateActiveSession(ctx, streamerID)
	if err != nil {
		slog.Error("session lookup failed", "streamer_id", streamerID.String(), "error", err)
		return false
	}

	window := time.Duration(parsed.Command.CooldownSeconds) * time.Second
	action := "cmd:" + parsed.Command.Trigger
	allowed, err := p.cooldowns.CheckAndTouch(ctx, session.ID, action, UserKey(chatterID, chatterName), &window)
	if err != nil {
		slog.Error("cooldown check failed", "session_id", session.ID.String(), "error", err)
		return false
	}
	if !allowed {
		metrics.EventsDroppedTotal.WithLabelValues("cooldown").Inc()
		return false
	}

	meta := map[string]any{
		"message": message,
		"chatter": chatterName,
		"userId":  chatterID,
		"trigger": parsed.Command.Trigger,
	}
	result, err := p.engine.AddHype(ctx, streamerID, parsed.FactionKey, parsed.Delta, domain.SourceChat, meta)
	if errors.Is(err, domain.ErrUnknownFaction) {
		metrics.EventsDroppedTotal.WithLabelValues("unknown_faction").Inc()
		return false
	}
	if err != nil {
		slog.Error("add hype failed", "streamer_id", streamerID.String(), "error", err)
		return false
	}

	snapshot, err := p.snapshots.Build(ctx, streamerID)
	if err != nil {
		slog.Error("post-chat snapshot failed", "streamer_id", streamerID.String(), "error", err)
		return true
	}
	p.hub.Broadcast(streamerID, "meters", snapshot)

	slog.Debug("chat hype applied",
		"streamer_id", streamerID.String(),
		"faction", result.FactionKey,
		"delta", fmt.Sprint(parsed.Delta),
		"meter", result.Meter,
	)
	return true
}

package hype

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

// PolicyResolver maps EventSub notifications onto a (factionKey, delta)
// target using the streamer's webhook policy.
type PolicyResolver struct {
	configs  domain.ConfigProvider
	sessions domain.SessionRepository
	engine   *Engine
}

func NewPolicyResolver(configs domain.ConfigProvider, sessions domain.SessionRepository, engine *Engine) *PolicyResolver {
	return &PolicyResolver{configs: configs, sessions: sessions, engine: engine}
}

// Resolve returns the faction key and delta for an event type, or ok=false
// when the event should be a no-op (unconfigured type, no target faction).
func (r *PolicyResolver) Resolve(ctx context.Context, streamerID uuid.UUID, eventType string) (string, int64, bool, error) {
	policy, err := r.configs.WebhookPolicy(ctx, streamerID)
	if err != nil {
		return "", 0, false, err
	}

	delta, configured := policy.EventDeltas[eventType]
	if !configured || delta == 0 {
		return "", 0, false, nil
	}

	switch policy.Mode {
	case domain.PolicyDefault:
		if policy.DefaultFactionKey == "" {
			return "", 0, false, nil
		}
		return policy.DefaultFactionKey, delta, true, nil

	case domain.PolicyLeader:
		key, found, err := r.leaderFaction(ctx, streamerID)
		if err != nil {
			return "", 0, false, err
		}
		if !found {
			return "", 0, false, nil
		}
		return key, delta, true, nil

	default:
		slog.Warn("unknown webhook policy mode", "streamer_id", streamerID.String(), "mode", string(policy.Mode))
		return "", 0, false, nil
	}
}

// leaderFaction returns the key of the faction with the highest meter in the
// streamer's active session. Ties break by sort order, then key.
func (r *PolicyResolver) leaderFaction(ctx context.Context, streamerID uuid.UUID) (string, bool, error) {
	session, err := r.engine.GetOrCreateActiveSession(ctx, streamerID)
	if err != nil {
		return "", false, err
	}
	meters, err := r.sessions.ListMeters(ctx, session.ID)
	if err != nil {
		return "", false, err
	}
	if len(meters) == 0 {
		return "", false, nil
	}

	leader := meters[0]
	for _, m := range meters[1:] {
		if m.Meter > leader.Meter {
			leader = m
			continue
		}
		if m.Meter == leader.Meter {
			if m.SortOrder < leader.SortOrder ||
				(m.SortOrder == leader.SortOrder && m.FactionKey < leader.FactionKey) {
				leader = m
			}
		}
	}
	return leader.FactionKey, true, nil
}

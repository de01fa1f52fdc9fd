package hype

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/metrics"
)

// SnapshotBuilder reads the current session and meters and serializes a
// consistent point-in-time view. Concurrent builds for the same streamer
// are coalesced, and store reads run behind a circuit breaker: while the
// store is unreachable, connected clients keep getting the last known good
// snapshot instead of errors.
type SnapshotBuilder struct {
	engine   *Engine
	sessions domain.SessionRepository
	clock    clockwork.Clock

	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker

	mu   sync.RWMutex
	last map[uuid.UUID]*domain.Snapshot
}

func NewSnapshotBuilder(engine *Engine, sessions domain.SessionRepository, clock clockwork.Clock) *SnapshotBuilder {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "snapshot-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &SnapshotBuilder{
		engine:   engine,
		sessions: sessions,
		clock:    clock,
		breaker:  breaker,
		last:     make(map[uuid.UUID]*domain.Snapshot),
	}
}

// Build returns the streamer's current snapshot. On store failure it falls
// back to the last successful snapshot when one exists.
func (b *SnapshotBuilder) Build(ctx context.Context, streamerID uuid.UUID) (*domain.Snapshot, error) {
	v, err, _ := b.group.Do(streamerID.String(), func() (any, error) {
		fresh, err := b.breaker.Execute(func() (any, error) {
			return b.build(ctx, streamerID)
		})
		if err == nil {
			snapshot := fresh.(*domain.Snapshot)
			b.mu.Lock()
			b.last[streamerID] = snapshot
			b.mu.Unlock()
			return snapshot, nil
		}

		b.mu.RLock()
		cached := b.last[streamerID]
		b.mu.RUnlock()
		if cached != nil {
			metrics.SnapshotFallbacksTotal.Inc()
			return cached, nil
		}
		return nil, err
	})
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	return v.(*domain.Snapshot), nil
}

func (b *SnapshotBuilder) build(ctx context.Context, streamerID uuid.UUID) (*domain.Snapshot, error) {
	session, err := b.engine.GetOrCreateActiveSession(ctx, streamerID)
	if err != nil {
		return nil, err
	}
	meters, err := b.sessions.ListMeters(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.MeterView, len(meters))
	for i, m := range meters {
		views[i] = domain.MeterView{
			FactionKey: m.FactionKey,
			Name:       m.Name,
			ColorHex:   m.ColorHex,
			Meter:      m.Meter,
		}
	}

	return &domain.Snapshot{
		OK:         true,
		StreamerID: streamerID,
		SessionID:  session.ID,
		UpdatedAt:  b.clock.Now(),
		Meters:     views,
	}, nil
}

package hype

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

// flakySessions delegates to the memory store until failing is set.
type flakySessions struct {
	domain.SessionRepository
	failing atomic.Bool
}

func (f *flakySessions) ListMeters(ctx context.Context, sessionID uuid.UUID) ([]domain.MeterRow, error) {
	if f.failing.Load() {
		return nil, errors.New("store unavailable")
	}
	return f.SessionRepository.ListMeters(ctx, sessionID)
}

func TestSnapshot_ContentAndOrdering(t *testing.T) {
	engine, store, clock, streamerID := newTestEngine(t)
	ctx := context.Background()
	builder := NewSnapshotBuilder(engine, store, clock)

	_, err := engine.AddHype(ctx, streamerID, "CHAOS", 30, domain.SourceChat, nil)
	require.NoError(t, err)
	_, err = engine.AddHype(ctx, streamerID, "ORDER", 10, domain.SourceChat, nil)
	require.NoError(t, err)

	snapshot, err := builder.Build(ctx, streamerID)
	require.NoError(t, err)

	assert.True(t, snapshot.OK)
	assert.Equal(t, streamerID, snapshot.StreamerID)
	assert.NotEqual(t, uuid.Nil, snapshot.SessionID)
	require.Len(t, snapshot.Meters, 2)
	assert.Equal(t, "ORDER", snapshot.Meters[0].FactionKey)
	assert.Equal(t, int64(10), snapshot.Meters[0].Meter)
	assert.Equal(t, "CHAOS", snapshot.Meters[1].FactionKey)
	assert.Equal(t, int64(30), snapshot.Meters[1].Meter)
}

func TestSnapshot_CumulativeNotReplay(t *testing.T) {
	engine, store, clock, streamerID := newTestEngine(t)
	ctx := context.Background()
	builder := NewSnapshotBuilder(engine, store, clock)

	for range 3 {
		_, err := engine.AddHype(ctx, streamerID, "ORDER", 5, domain.SourceChat, nil)
		require.NoError(t, err)
	}

	snapshot, err := builder.Build(ctx, streamerID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), snapshot.Meters[0].Meter)
}

func TestSnapshot_FallsBackToLastKnownGood(t *testing.T) {
	engine, store, clock, streamerID := newTestEngine(t)
	ctx := context.Background()

	flaky := &flakySessions{SessionRepository: store}
	builder := NewSnapshotBuilder(engine, flaky, clock)

	_, err := engine.AddHype(ctx, streamerID, "ORDER", 42, domain.SourceChat, nil)
	require.NoError(t, err)

	good, err := builder.Build(ctx, streamerID)
	require.NoError(t, err)
	require.Equal(t, int64(42), good.Meters[0].Meter)

	flaky.failing.Store(true)
	stale, err := builder.Build(ctx, streamerID)
	require.NoError(t, err)
	assert.Equal(t, good, stale)
}

func TestSnapshot_NoFallbackWithoutHistory(t *testing.T) {
	engine, store, clock, streamerID := newTestEngine(t)

	flaky := &flakySessions{SessionRepository: store}
	flaky.failing.Store(true)
	builder := NewSnapshotBuilder(engine, flaky, clock)

	_, err := builder.Build(context.Background(), streamerID)
	assert.Error(t, err)
}

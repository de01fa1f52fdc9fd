package hype

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *clockwork.FakeClock, uuid.UUID) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(clock)
	engine := NewEngine(store, store, store, clock)

	streamerID := uuid.New()
	seedFaction(t, store, streamerID, "ORDER", 0)
	seedFaction(t, store, streamerID, "CHAOS", 1)
	return engine, store, clock, streamerID
}

func seedFaction(t *testing.T, store *MemoryStore, streamerID uuid.UUID, key string, sortOrder int) *domain.Faction {
	t.Helper()
	f := &domain.Faction{
		ID:         uuid.New(),
		StreamerID: streamerID,
		Key:        key,
		Name:       key,
		SortOrder:  sortOrder,
		IsActive:   true,
	}
	require.NoError(t, store.Create(context.Background(), f))
	return f
}

func TestAddHype_AppliesDelta(t *testing.T) {
	engine, _, _, streamerID := newTestEngine(t)

	result, err := engine.AddHype(context.Background(), streamerID, "ORDER", 5, domain.SourceChat, nil)
	require.NoError(t, err)
	assert.Equal(t, "ORDER", result.FactionKey)
	assert.Equal(t, int64(5), result.Meter)
}

func TestAddHype_NormalizesKey(t *testing.T) {
	engine, _, _, streamerID := newTestEngine(t)

	result, err := engine.AddHype(context.Background(), streamerID, "  order ", 3, domain.SourceChat, nil)
	require.NoError(t, err)
	assert.Equal(t, "ORDER", result.FactionKey)
}

func TestAddHype_ClampsAtZero(t *testing.T) {
	engine, _, _, streamerID := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddHype(ctx, streamerID, "ORDER", 10, domain.SourceChat, nil)
	require.NoError(t, err)

	result, err := engine.AddHype(ctx, streamerID, "ORDER", -25, domain.SourceChat, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Meter)
}

func TestAddHype_UnknownFaction(t *testing.T) {
	engine, _, _, streamerID := newTestEngine(t)

	_, err := engine.AddHype(context.Background(), streamerID, "NOPE", 5, domain.SourceChat, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownFaction)
}

func TestAddHype_InactiveFactionRejected(t *testing.T) {
	engine, store, _, streamerID := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, store.SetActive(ctx, streamerID, "CHAOS", false))

	_, err := engine.AddHype(ctx, streamerID, "CHAOS", 5, domain.SourceChat, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownFaction)
}

func TestAddHype_AppendsEventLog(t *testing.T) {
	engine, store, _, streamerID := newTestEngine(t)

	_, err := engine.AddHype(context.Background(), streamerID, "ORDER", 5, domain.SourceChat, map[string]any{"chatter": "alice"})
	require.NoError(t, err)

	log := store.EventLog()
	require.Len(t, log, 1)
	assert.Equal(t, streamerID, log[0].StreamerID)
	assert.Equal(t, domain.SourceChat, log[0].Source)
	assert.Equal(t, int64(5), log[0].Payload["delta"])
	assert.Equal(t, "alice", log[0].Payload["chatter"])
}

func TestGetOrCreateActiveSession_ReusesOpenSession(t *testing.T) {
	engine, _, _, streamerID := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.GetOrCreateActiveSession(ctx, streamerID)
	require.NoError(t, err)
	second, err := engine.GetOrCreateActiveSession(ctx, streamerID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateActiveSession_SeedsMetersForAllFactions(t *testing.T) {
	engine, store, _, streamerID := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.GetOrCreateActiveSession(ctx, streamerID)
	require.NoError(t, err)

	meters, err := store.ListMeters(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, meters, 2)
	assert.Equal(t, "ORDER", meters[0].FactionKey)
	assert.Equal(t, "CHAOS", meters[1].FactionKey)
	assert.Equal(t, int64(0), meters[0].Meter)
	assert.Equal(t, int64(0), meters[1].Meter)
}

func TestGetOrCreateActiveSession_MidSessionFactionAppears(t *testing.T) {
	engine, store, _, streamerID := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.GetOrCreateActiveSession(ctx, streamerID)
	require.NoError(t, err)

	seedFaction(t, store, streamerID, "NEUTRAL", 2)
	_, err = engine.GetOrCreateActiveSession(ctx, streamerID)
	require.NoError(t, err)

	meters, err := store.ListMeters(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, meters, 3)
}

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/hype"
)

type captureHub struct {
	broadcasts int
}

func (h *captureHub) Broadcast(_ uuid.UUID, _ string, _ any) {
	h.broadcasts++
}

type processorFixture struct {
	processor  *Processor
	store      *hype.MemoryStore
	clock      *clockwork.FakeClock
	hub        *captureHub
	streamerID uuid.UUID
}

func setupProcessor(t *testing.T) *processorFixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := hype.NewMemoryStore(clock)
	engine := hype.NewEngine(store, store, store, clock)
	snapshots := hype.NewSnapshotBuilder(engine, store, clock)
	cooldowns := hype.NewCooldownGuard(store, clock, time.Hour)
	hub := &captureHub{}

	streamerID := uuid.New()
	factions := hype.NewFactionService(store)
	require.NoError(t, factions.SeedDefaults(context.Background(), streamerID))

	return &processorFixture{
		processor:  NewProcessor(engine, cooldowns, store, snapshots, hub, "!"),
		store:      store,
		clock:      clock,
		hub:        hub,
		streamerID: streamerID,
	}
}

func (f *processorFixture) meter(t *testing.T, key string) int64 {
	t.Helper()
	ctx := context.Background()
	session, err := f.store.GetActive(ctx, f.streamerID)
	require.NoError(t, err)
	require.NotNil(t, session)
	meters, err := f.store.ListMeters(ctx, session.ID)
	require.NoError(t, err)
	for _, m := range meters {
		if m.FactionKey == key {
			return m.Meter
		}
	}
	t.Fatalf("faction %s not found", key)
	return 0
}

func TestProcess_AppliesHypeCommand(t *testing.T) {
	f := setupProcessor(t)

	applied := f.processor.Process(context.Background(), f.streamerID, "u1", "alice", "!hype ORDER 5")
	require.True(t, applied)
	assert.Equal(t, int64(5), f.meter(t, "ORDER"))

	log := f.store.EventLog()
	require.Len(t, log, 1)
	assert.Equal(t, domain.SourceChat, log[0].Source)
	assert.Equal(t, int64(5), log[0].Payload["delta"])

	assert.Equal(t, 1, f.hub.broadcasts)
}

func TestProcess_CooldownDropsRepeat(t *testing.T) {
	f := setupProcessor(t)
	ctx := context.Background()

	require.True(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!hype ORDER 5"))
	assert.False(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!hype ORDER 5"))
	assert.Equal(t, int64(5), f.meter(t, "ORDER"))
	assert.Equal(t, 1, f.hub.broadcasts)
}

func TestProcess_CooldownIsPerCommand(t *testing.T) {
	f := setupProcessor(t)
	ctx := context.Background()

	require.True(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!hype ORDER 5"))
	assert.True(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!vote ORDER"))
	assert.Equal(t, int64(6), f.meter(t, "ORDER"))
}

func TestProcess_CooldownExpires(t *testing.T) {
	f := setupProcessor(t)
	ctx := context.Background()

	require.True(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!hype ORDER 5"))
	f.clock.Advance(61 * time.Second)
	assert.True(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!hype ORDER 5"))
	assert.Equal(t, int64(10), f.meter(t, "ORDER"))
}

func TestProcess_OtherUsersUnaffectedByCooldown(t *testing.T) {
	f := setupProcessor(t)
	ctx := context.Background()

	require.True(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!hype ORDER 5"))
	assert.True(t, f.processor.Process(ctx, f.streamerID, "u2", "bob", "!hype ORDER 5"))
	assert.Equal(t, int64(10), f.meter(t, "ORDER"))
}

func TestProcess_UnknownFactionDropsSilently(t *testing.T) {
	f := setupProcessor(t)

	applied := f.processor.Process(context.Background(), f.streamerID, "u1", "alice", "!hype GHOSTS 5")
	assert.False(t, applied)
	assert.Equal(t, 0, f.hub.broadcasts)
}

func TestProcess_NonCommandIgnored(t *testing.T) {
	f := setupProcessor(t)

	applied := f.processor.Process(context.Background(), f.streamerID, "u1", "alice", "great stream today")
	assert.False(t, applied)
	assert.Empty(t, f.store.EventLog())
}

func TestProcess_CustomCommandTable(t *testing.T) {
	f := setupProcessor(t)
	ctx := context.Background()

	f.store.CommandTable[f.streamerID] = []domain.ChatCommand{
		{Kind: domain.CommandHype, Trigger: "boost", Enabled: true, CooldownSeconds: 10, MaxDelta: 500, DefaultDelta: 50},
	}

	assert.False(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!hype ORDER 5"))
	require.True(t, f.processor.Process(ctx, f.streamerID, "u1", "alice", "!boost ORDER"))
	assert.Equal(t, int64(50), f.meter(t, "ORDER"))
}

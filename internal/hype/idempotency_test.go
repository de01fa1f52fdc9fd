package hype

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptGuard_FirstClaimWins(t *testing.T) {
	guard := NewReceiptGuard(NewMemoryStore(clockwork.NewFakeClock()))
	ctx := context.Background()
	streamerID := uuid.New()

	fresh, err := guard.Reserve(ctx, streamerID, "msg-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = guard.Reserve(ctx, streamerID, "msg-1")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestReceiptGuard_ScopedPerStreamer(t *testing.T) {
	guard := NewReceiptGuard(NewMemoryStore(clockwork.NewFakeClock()))
	ctx := context.Background()

	fresh, err := guard.Reserve(ctx, uuid.New(), "msg-1")
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = guard.Reserve(ctx, uuid.New(), "msg-1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestReceiptGuard_EmptyIDAlwaysAllowed(t *testing.T) {
	guard := NewReceiptGuard(NewMemoryStore(clockwork.NewFakeClock()))
	ctx := context.Background()
	streamerID := uuid.New()

	for range 3 {
		fresh, err := guard.Reserve(ctx, streamerID, "")
		require.NoError(t, err)
		assert.True(t, fresh)
	}
}

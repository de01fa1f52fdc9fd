package hype

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

// CooldownGuard gates repeated actions from the same user within a window.
type CooldownGuard struct {
	repo          domain.CooldownRepository
	clock         clockwork.Clock
	defaultWindow time.Duration
}

func NewCooldownGuard(repo domain.CooldownRepository, clock clockwork.Clock, defaultWindow time.Duration) *CooldownGuard {
	return &CooldownGuard{repo: repo, clock: clock, defaultWindow: defaultWindow}
}

// CheckAndTouch reports whether the (session, action, userKey) tuple is
// allowed to act now, and records the attempt when it is. A nil override
// uses the guard's default window; a zero window disables the gate entirely.
//
// The first call for a tuple always passes. Subsequent calls pass only once
// the window has elapsed since the last allowed call; blocked calls do not
// refresh the window.
func (g *CooldownGuard) CheckAndTouch(ctx context.Context, sessionID uuid.UUID, action, userKey string, override *time.Duration) (bool, error) {
	window := g.defaultWindow
	if override != nil {
		window = *override
	}
	if window <= 0 {
		return true, nil
	}
	return g.repo.CheckAndTouch(ctx, sessionID, action, userKey, window, g.clock.Now())
}

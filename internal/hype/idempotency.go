package hype

import (
	"context"

	"github.com/google/uuid"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

// ReceiptGuard claims external event ids exactly once per streamer. The
// claim is a single constraint-backed insert, never check-then-insert, so
// exactly one caller wins under concurrent webhook retries.
type ReceiptGuard struct {
	repo domain.ReceiptRepository
}

func NewReceiptGuard(repo domain.ReceiptRepository) *ReceiptGuard {
	return &ReceiptGuard{repo: repo}
}

// Reserve returns true the first time eventID is seen for the streamer and
// false on every later attempt. An empty eventID means the caller did not
// request deduplication and is always allowed.
func (g *ReceiptGuard) Reserve(ctx context.Context, streamerID uuid.UUID, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	return g.repo.Claim(ctx, streamerID, eventID)
}

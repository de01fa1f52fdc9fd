package hype

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/logging"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/metrics"
)

// decayDebounce skips a session when less time than this has elapsed since
// its last decay, so overlapping tickers or restarts never double-apply.
const decayDebounce = 10 * time.Second

// DecayResult reports what a single ApplyDecayIfNeeded call did.
type DecayResult struct {
	Applied bool
	Updated int64
	Factor  float64
}

// Broadcaster is the hub surface the decay loop needs.
type Broadcaster interface {
	Broadcast(streamerID uuid.UUID, event string, payload any)
}

// Decayer periodically shrinks every active session's meters by an
// exponential factor and broadcasts the new state.
type Decayer struct {
	sessions  domain.SessionRepository
	configs   domain.ConfigProvider
	snapshots *SnapshotBuilder
	hub       Broadcaster
	clock     clockwork.Clock
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewDecayer(sessions domain.SessionRepository, configs domain.ConfigProvider, snapshots *SnapshotBuilder, hub Broadcaster, clock clockwork.Clock, interval time.Duration) *Decayer {
	return &Decayer{
		sessions:  sessions,
		configs:   configs,
		snapshots: snapshots,
		hub:       hub,
		clock:     clock,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the decay ticker until Stop is called.
func (d *Decayer) Start() {
	go d.run()
}

// Stop terminates the loop and waits for the current tick to finish.
func (d *Decayer) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Decayer) run() {
	defer close(d.doneCh)
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			d.Tick(context.Background())
		case <-d.stopCh:
			return
		}
	}
}

// Tick processes every active session once. Each session is isolated: one
// streamer's failure never blocks the others.
func (d *Decayer) Tick(ctx context.Context) {
	metrics.DecayTicksTotal.Inc()

	sessions, err := d.sessions.ListAllActive(ctx)
	if err != nil {
		slog.Error("decay tick: list sessions failed", "error", err)
		return
	}

	for i := range sessions {
		session := &sessions[i]
		result, err := d.ApplyDecayIfNeeded(ctx, session)
		if err != nil {
			metrics.DecaySessionErrors.Inc()
			logging.WithSession(session.ID.String()).Error("decay failed", "error", err)
			continue
		}
		if !result.Applied || result.Updated == 0 {
			continue
		}
		metrics.DecayAppliedTotal.Inc()

		snapshot, err := d.snapshots.Build(ctx, session.StreamerID)
		if err != nil {
			logging.WithStreamer(session.StreamerID.String()).Error("post-decay snapshot failed", "error", err)
			continue
		}
		d.hub.Broadcast(session.StreamerID, "meters", snapshot)
	}
}

// ApplyDecayIfNeeded applies exponential decay to all meters of the session
// when its debounce window has passed.
//
// The factor is (1 - percentPerMinute/100) ^ elapsedMinutes. Exponential
// rather than linear so repeated short windows compose: decaying twice for
// t/2 equals decaying once for t. The first tick after a session appears only
// initializes last_decay_at, because the elapsed window before that point is
// unknown.
func (d *Decayer) ApplyDecayIfNeeded(ctx context.Context, session *domain.StreamSession) (DecayResult, error) {
	cfg, err := d.configs.Decay(ctx, session.StreamerID)
	if err != nil {
		return DecayResult{}, err
	}
	if !cfg.Enabled || cfg.PercentPerMinute <= 0 {
		return DecayResult{}, nil
	}

	now := d.clock.Now()

	if session.LastDecayAt == nil {
		if err := d.sessions.SetLastDecayAt(ctx, session.ID, now); err != nil {
			return DecayResult{}, err
		}
		session.LastDecayAt = &now
		return DecayResult{}, nil
	}

	elapsed := now.Sub(*session.LastDecayAt)
	if elapsed < decayDebounce {
		return DecayResult{}, nil
	}

	minutes := elapsed.Minutes()
	factor := math.Pow(1-cfg.PercentPerMinute/100, minutes)

	updated, err := d.sessions.ScaleMeters(ctx, session.ID, factor, cfg.MinClampAbs)
	if err != nil {
		return DecayResult{}, err
	}
	if err := d.sessions.SetLastDecayAt(ctx, session.ID, now); err != nil {
		return DecayResult{}, err
	}
	session.LastDecayAt = &now

	return DecayResult{Applied: true, Updated: updated, Factor: factor}, nil
}

// Package metrics defines the prometheus collectors for the hype pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics
var (
	// EventsIngestedTotal counts meter mutations that were applied, by source.
	EventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hype_events_ingested_total",
			Help: "Meter mutations applied, by source",
		},
		[]string{"source"},
	)

	// EventsDroppedTotal counts silently dropped events by reason. The chat
	// surface never reports errors to users; this is the observability hook.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hype_events_dropped_total",
			Help: "Silently dropped events, by reason (parse, cooldown, duplicate, unknown_faction, policy_noop)",
		},
		[]string{"reason"},
	)

	// WebhookRequestsTotal counts webhook deliveries by outcome.
	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hype_webhook_requests_total",
			Help: "EventSub webhook deliveries, by outcome (ok, bad_signature, bad_payload, duplicate, error)",
		},
		[]string{"outcome"},
	)
)

// Decay metrics
var (
	// DecayTicksTotal counts decay loop ticks.
	DecayTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hype_decay_ticks_total",
			Help: "Decay loop ticks",
		},
	)

	// DecayAppliedTotal counts sessions where a tick actually decayed meters.
	DecayAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hype_decay_applied_total",
			Help: "Sessions with decay applied",
		},
	)

	// DecaySessionErrors counts per-session decay failures. One streamer's
	// failure never halts the tick.
	DecaySessionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hype_decay_session_errors_total",
			Help: "Per-session decay failures",
		},
	)
)

// Broadcast metrics
var (
	// SSEConnectedClients is the number of open SSE connections.
	SSEConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hype_sse_connected_clients",
			Help: "Open SSE connections across all streamers",
		},
	)

	// SSEClientsEvicted counts clients pruned for being slow or broken.
	SSEClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hype_sse_clients_evicted_total",
			Help: "SSE clients pruned on full buffer or write failure",
		},
	)

	// BroadcastsTotal counts hub broadcasts by event name.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hype_broadcasts_total",
			Help: "Hub broadcasts, by event name",
		},
		[]string{"event"},
	)

	// SnapshotFallbacksTotal counts snapshot builds served from the
	// last-known-good cache because the store was unreachable.
	SnapshotFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hype_snapshot_fallbacks_total",
			Help: "Snapshots served stale because the store was unreachable",
		},
	)
)

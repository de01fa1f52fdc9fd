// Package broadcast implements the in-process realtime hub.
//
// The Hub fans out named events to every SSE client and local subscriber
// registered for a streamer. Payloads are serialized once per broadcast;
// delivery is fire-and-forget per client, and a client whose buffer is full
// is evicted rather than allowed to block or buffer unbounded.
package broadcast

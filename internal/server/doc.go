// Package server wires the HTTP surface: dashboard API, overlay SSE,
// the generic keyed event API, webhooks, and health endpoints.
package server

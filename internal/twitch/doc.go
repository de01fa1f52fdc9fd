// Package twitch contains the EventSub webhook endpoint (signature
// verification, message routing, idempotent processing) and the Helix-backed
// subscription manager.
package twitch

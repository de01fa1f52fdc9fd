// Package hype implements the meter pipeline core: the meter engine (the
// single mutation path for all hype changes), session management, the decay
// loop, the cooldown and idempotency guards, the webhook policy resolver,
// and the snapshot builder.
//
// Concurrency discipline: meter rows are mutated only through atomic
// single-statement updates in the SessionRepository, never read-modify-write.
// Decay and ingestion interleave freely against the same rows and stay
// correct because of that, not because of sequencing.
package hype

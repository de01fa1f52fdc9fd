// Package database implements the repository interfaces on Postgres via
// pgx. The guard operations (cooldown touch, receipt claim) and the meter
// mutations are single atomic statements: correctness under concurrent
// chat, webhook, and decay writers depends on that, not on call ordering.
package database

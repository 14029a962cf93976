// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package coordinator runs the per-client side of the round lifecycle: one
Session per connected client drives the local countdown, live-tally
subscriptions, vote casting, and the expiry-triggered close attempt.

# State Machine

	Uninitialized → Waiting          no active round found
	Uninitialized → Voting           active round found
	Voting        → Closing          local countdown hit zero, or a pushed
	                                 round event reported completion
	Closing       → Transitioning    a winner was obtained (own close or
	                                 another client's)
	Transitioning → Uninitialized    30 second countdown elapsed; the full
	                                 discovery sequence runs again

# Event Ordering

Run owns a single loop that processes ticker ticks, pushed snapshots,
and vote requests strictly one at a time. "Timer expired" and "server
says completed" are therefore mutually exclusive triggers into the same
state machine rather than racing callbacks.

# Shared Authority

Any client may close the round; CloseRound is idempotent, so redundant
attempts from many clients are the steady state. A client that loses the
close race still receives the authoritative winner and results.

# Vote Reconciliation

The locally cached "have I voted" flag is keyed to a round identity. On
every initialization the cache is discarded if it references a different
round, then overridden by the ledger's authoritative voter set either
way. The cache exists only to suppress duplicate attempts across
restarts.

# Usage

	sess, err := coordinator.NewSession(manager, ledger, catalog, hub, local, sink, coordinator.Config{})
	if err != nil { ... }
	go sess.Run(ctx)
	...
	if err := sess.CastVote(charityID); err != nil { ... }

Sink callbacks deliver all presentation updates on the loop goroutine.
*/
package coordinator

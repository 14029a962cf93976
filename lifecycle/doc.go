// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package lifecycle manages rounds from creation to completion.

# Creation

CreateRound builds the next round: the lowest unused round number, a
duration from the fixed schedule (5, 10, 20, 30, then 60 minutes
thereafter), and five charities sampled from the catalog without
replacement. The round row and its five zeroed vote records commit in one
transaction, and a partial unique index on the round table guarantees at
most one active round even under concurrent creators.

# Closing

CloseRound is deliberately public and idempotent. The transition is a
guarded update:

	UPDATE round SET status = 'completed', ... WHERE id = $1 AND status = 'active'

Exactly one concurrent caller wins that update and writes the immutable
result snapshot in the same transaction; every other caller reads the
stored outcome back. All callers return the identical winner and results.

The winner is the charity with the strictly highest count; ties resolve
to the earliest selection position, which also makes a zero-vote round
complete deterministically with its first selected charity.
*/
package lifecycle

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger implements the vote ledger: the only writer of vote counts
in the system.

# Casting

CastVote records one vote in a single transaction:

	tallies, err := ledger.CastVote(ctx, roundID, charityID, voterID, meta)

Inside that transaction the voter joins the round's voter set, the
charity's vote record increments, and the round total increments. The
voter set is a table keyed by (round_id, voter_id), so a second cast by
the same voter fails the insert and surfaces as ErrAlreadyVoted - no
matter which charity it names, and with no partial effects.

Transient lock and serialization conflicts are retried a bounded number
of times; terminal outcomes (ErrAlreadyVoted, ErrRoundNotFound,
ErrRoundClosed) are never retried.

# Reading

GetTallies returns a full snapshot of a round's per-charity counts and
total. VoterCharity answers "which charity did this voter back", which is
the authoritative input for client-side vote-state reconciliation.

# Notifications

Each successful cast publishes the post-commit tallies snapshot through
the notify.Publisher handed to New. A nil publisher is allowed and skips
publication.
*/
package ledger

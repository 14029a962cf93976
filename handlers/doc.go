// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the IDO Charity rounds API.

# Handler Types

Each handler is a struct built from the database connection and config:

  - RoundHandler: Round lifecycle (current, create, close, lookup)
  - VoteHandler: Vote casting and per-voter reconciliation
  - ResultsHandler: Tally snapshots and the live SSE stream
  - CharityHandler: Charity catalog reads
  - DonationHandler: Donation history and summary

Handlers are created via constructor functions:

	roundHandler := handlers.NewRoundHandler(db, cfg, pub)

# Round Lifecycle

Rounds progress through two states: active → completed

	GET  /rounds/current    → Current (active round, charities, tallies)
	POST /rounds            → Create (admin, X-Admin-Key)
	POST /rounds/{id}/close → Close (public, idempotent)
	GET  /rounds/{id}       → Get (completed rounds include results)

Closing is deliberately public: any client that observes the deadline
may trigger it, and concurrent callers all receive the same stored
outcome.

# Voting Flow

Voters identify themselves with the X-Voter-ID header, minted client
side and persisted locally:

	POST /rounds/{id}/votes    → Cast (one per voter per round)
	GET  /rounds/{id}/votes/me → MyVote (ledger-authoritative lookup)

A duplicate cast returns 409 Conflict and changes nothing, no matter
which charity the duplicate names.

# Live Results

	GET /rounds/{id}/tallies → Tallies (consistent snapshot)
	GET /rounds/{id}/stream  → Stream (server-sent events)

The stream emits full tally snapshots, so a dropped event costs nothing
once the next one arrives.
*/
package handlers

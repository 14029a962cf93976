// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The DDL sticks to the dialect shared by SQLite and PostgreSQL so the same
schema runs against either driver.

# Tables

  - charity: Static catalog entries
  - round: Round lifecycle state (append-only history)
  - round_charity: Per-(round, charity) vote counters with selection order
  - vote: Voter-identifier membership, one row per voter per round
  - round_result: Immutable per-charity results written at close

# Invariants Enforced by the Schema

  - idx_round_single_active: a partial unique index on round(status)
    guarantees at most one active round exists
  - round.round_number UNIQUE: gapless numbering is maintained by the
    lifecycle manager; the index rejects accidental reuse
  - vote PRIMARY KEY (round_id, voter_id): a voter identifier can appear
    at most once per round, no matter which charity is targeted
  - round_charity UNIQUE (round_id, position): selection order is stable

# Relationships

	charity 1──* round_charity
	round   1──* round_charity
	round   1──* vote
	round   1──* round_result

All round-scoped foreign keys use ON DELETE CASCADE, although rounds are
never deleted in practice.
*/
package db

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the rounds
service.

# Request Types

Types for parsing incoming JSON:

  - CastVoteRequest: charity_id

# Response Types

Types for JSON responses:

  - CastVoteResponse: charity_id, total_votes, message
  - CreateRoundResponse: round
  - CloseRoundResponse: round_id, winner_id, results
  - MyVoteResponse: has_voted, charity_id
  - TalliesResponse: round_id, total_votes, tallies
  - DonationsResponse: donations, totals
  - ErrorResponse: error, message

# Domain Types

Internal data structures:

  - Charity: static catalog entry (read-only to the core)
  - Round: one timed voting contest over a fixed charity panel
  - VoteRecord: per-(round, charity) counter with selection position
  - CharityTally: a (charity_id, vote_count) pair in selection order
  - Tallies: full-replacement snapshot of a round's counts
  - Donation: curated historical payout entry

# Constants

Round status values:

	StatusActive    = "active"
	StatusCompleted = "completed"

Panel size:

	CharitiesPerRound = 5
*/
package models

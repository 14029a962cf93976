// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Round status constants
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// CharitiesPerRound is the size of the panel selected for each round.
const CharitiesPerRound = 5

// Request types

type CastVoteRequest struct {
	CharityID string `json:"charity_id"`
}

// Response types

type CastVoteResponse struct {
	CharityID  string `json:"charity_id"`
	TotalVotes int    `json:"total_votes"`
	Message    string `json:"message"`
}

type CreateRoundResponse struct {
	Round Round `json:"round"`
}

type CloseRoundResponse struct {
	RoundID  string         `json:"round_id"`
	WinnerID string         `json:"winner_id"`
	Results  []CharityTally `json:"results"`
}

type MyVoteResponse struct {
	HasVoted  bool   `json:"has_voted"`
	CharityID string `json:"charity_id,omitempty"`
}

type TalliesResponse struct {
	RoundID    string         `json:"round_id"`
	TotalVotes int            `json:"total_votes"`
	Tallies    map[string]int `json:"tallies"`
}

type DonationsResponse struct {
	Donations    []Donation `json:"donations"`
	TotalAmount  string     `json:"total_amount"`
	TotalVotes   string     `json:"total_votes"`
	RoundsClosed int        `json:"rounds_closed"`
}

// Domain types

type Charity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Region      string `json:"region"`
	Website     string `json:"website"`
	Category    string `json:"category"`
}

type Round struct {
	ID              string         `json:"id"`
	RoundNumber     int            `json:"round_number"`
	Status          string         `json:"status"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	DurationMinutes int            `json:"duration_minutes"`
	CharityIDs      []string       `json:"charity_ids"`
	TotalVotes      int            `json:"total_votes"`
	WinnerID        *string        `json:"winner_id,omitempty"`
	Results         []CharityTally `json:"results,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// Remaining reports the time left before the round's scheduled end.
// Never negative.
func (r Round) Remaining(now time.Time) time.Duration {
	d := r.EndTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// VoteRecord is the per-(round, charity) ledger entry. Position is the
// charity's index in the round's selection order and breaks winner ties.
type VoteRecord struct {
	RoundID   string `json:"round_id"`
	CharityID string `json:"charity_id"`
	Position  int    `json:"position"`
	VoteCount int    `json:"vote_count"`
}

type CharityTally struct {
	CharityID string `json:"charity_id"`
	VoteCount int    `json:"vote_count"`
}

// Tallies is a full-replacement snapshot of one round's vote counts.
// Consumers must not treat successive snapshots as deltas.
type Tallies struct {
	RoundID    string         `json:"round_id"`
	ByCharity  map[string]int `json:"by_charity"`
	TotalVotes int            `json:"total_votes"`
}

// RoundWithCharities bundles a round with its resolved catalog entries,
// in selection order.
type RoundWithCharities struct {
	Round     Round     `json:"round"`
	Charities []Charity `json:"charities"`
}

// Donation is one manually curated historical payout entry.
type Donation struct {
	RoundNumber     int    `json:"round_number"`
	Date            string `json:"date"`
	CharityName     string `json:"charity_name"`
	AmountUSD       int    `json:"amount_usd"`
	Amount          string `json:"amount"`
	Votes           int    `json:"votes"`
	TotalVotes      int    `json:"total_votes"`
	DurationMinutes int    `json:"duration_minutes"`
	TweetURL        string `json:"tweet_url,omitempty"`
	TransactionURL  string `json:"transaction_url,omitempty"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/testutil"
)

func TestCastVote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ledger := New(db, nil)

	tallies, err := ledger.CastVote(ctx, roundID, charities[1], "voter_1", CastMeta{})
	if err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}

	if tallies.TotalVotes != 1 {
		t.Errorf("Expected total 1, got %d", tallies.TotalVotes)
	}
	if tallies.ByCharity[charities[1]] != 1 {
		t.Errorf("Expected charity count 1, got %d", tallies.ByCharity[charities[1]])
	}
	if tallies.ByCharity[charities[0]] != 0 {
		t.Errorf("Expected untouched charity count 0, got %d", tallies.ByCharity[charities[0]])
	}
}

func TestCastVoteDuplicate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ledger := New(db, nil)

	if _, err := ledger.CastVote(ctx, roundID, charities[1], "voter_1", CastMeta{}); err != nil {
		t.Fatalf("First cast failed: %v", err)
	}

	// Same voter, same charity
	_, err := ledger.CastVote(ctx, roundID, charities[1], "voter_1", CastMeta{})
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("Expected ErrAlreadyVoted, got %v", err)
	}

	// Same voter, different charity: still rejected, ledger untouched
	_, err = ledger.CastVote(ctx, roundID, charities[2], "voter_1", CastMeta{})
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("Expected ErrAlreadyVoted for different charity, got %v", err)
	}

	tallies, err := ledger.GetTallies(ctx, roundID)
	if err != nil {
		t.Fatalf("GetTallies failed: %v", err)
	}
	if tallies.TotalVotes != 1 {
		t.Errorf("Expected total to stay 1 after rejected duplicates, got %d", tallies.TotalVotes)
	}
	if tallies.ByCharity[charities[2]] != 0 {
		t.Errorf("Rejected duplicate must not count, got %d", tallies.ByCharity[charities[2]])
	}
}

func TestCastVoteClosedRound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusCompleted, time.Now().Add(-time.Minute))

	ledger := New(db, nil)

	_, err := ledger.CastVote(ctx, roundID, charities[0], "voter_1", CastMeta{})
	if !errors.Is(err, ErrRoundClosed) {
		t.Errorf("Expected ErrRoundClosed, got %v", err)
	}
}

func TestCastVoteUnknownTargets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ledger := New(db, nil)

	// Nonexistent round
	_, err := ledger.CastVote(ctx, "no-such-round", charities[0], "voter_1", CastMeta{})
	if !errors.Is(err, ErrRoundNotFound) {
		t.Errorf("Expected ErrRoundNotFound for unknown round, got %v", err)
	}

	// Charity not in this round's panel
	_, err = ledger.CastVote(ctx, roundID, "no-such-charity", "voter_1", CastMeta{})
	if !errors.Is(err, ErrRoundNotFound) {
		t.Errorf("Expected ErrRoundNotFound for charity outside panel, got %v", err)
	}
}

// TestConcurrentDistinctVoters verifies that simultaneous votes from
// different voters are never lost: the per-charity counts and the round
// total both equal the number of successful casts.
func TestConcurrentDistinctVoters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ledger := New(db, nil)

	numVoters := 25
	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			voterID := fmt.Sprintf("voter_%d", idx)
			_, err := ledger.CastVote(ctx, roundID, charities[idx%len(charities)], voterID, CastMeta{})
			if err == nil {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if int(successCount.Load()) != numVoters {
		t.Errorf("Expected %d successful casts, got %d", numVoters, successCount.Load())
	}

	tallies, err := ledger.GetTallies(ctx, roundID)
	if err != nil {
		t.Fatalf("GetTallies failed: %v", err)
	}
	if tallies.TotalVotes != numVoters {
		t.Errorf("Expected total %d, got %d", numVoters, tallies.TotalVotes)
	}

	sum := 0
	for _, count := range tallies.ByCharity {
		sum += count
	}
	if sum != numVoters {
		t.Errorf("Per-charity counts sum to %d, want %d", sum, numVoters)
	}
}

// TestConcurrentSameVoter verifies that a voter racing against itself
// gets exactly one vote through.
func TestConcurrentSameVoter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ledger := New(db, nil)

	attempts := 10
	var successCount, duplicateCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := ledger.CastVote(ctx, roundID, charities[idx%len(charities)], "voter_racer", CastMeta{})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, ErrAlreadyVoted):
				duplicateCount.Add(1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("Expected exactly 1 success, got %d", successCount.Load())
	}
	if duplicateCount.Load() != int32(attempts-1) {
		t.Errorf("Expected %d duplicates, got %d", attempts-1, duplicateCount.Load())
	}

	tallies, err := ledger.GetTallies(ctx, roundID)
	if err != nil {
		t.Fatalf("GetTallies failed: %v", err)
	}
	if tallies.TotalVotes != 1 {
		t.Errorf("Expected total 1, got %d", tallies.TotalVotes)
	}
}

// TestCastSequence walks the canonical two-voter sequence: voter 1 backs
// B, voter 1 retries with C and is rejected, voter 2 backs B.
func TestCastSequence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ledger := New(db, nil)
	b, c := charities[1], charities[2]

	if _, err := ledger.CastVote(ctx, roundID, b, "voter_1", CastMeta{}); err != nil {
		t.Fatalf("voter_1 -> B failed: %v", err)
	}
	if _, err := ledger.CastVote(ctx, roundID, c, "voter_1", CastMeta{}); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("voter_1 -> C should be rejected, got %v", err)
	}
	if _, err := ledger.CastVote(ctx, roundID, b, "voter_2", CastMeta{}); err != nil {
		t.Fatalf("voter_2 -> B failed: %v", err)
	}

	tallies, err := ledger.GetTallies(ctx, roundID)
	if err != nil {
		t.Fatalf("GetTallies failed: %v", err)
	}
	if tallies.ByCharity[b] != 2 {
		t.Errorf("Expected B count 2, got %d", tallies.ByCharity[b])
	}
	if tallies.ByCharity[c] != 0 {
		t.Errorf("Expected C count 0, got %d", tallies.ByCharity[c])
	}
	if tallies.TotalVotes != 2 {
		t.Errorf("Expected total 2, got %d", tallies.TotalVotes)
	}
}

func TestGetTalliesUnknownRound(t *testing.T) {
	db := testutil.SetupTestDB(t)

	ledger := New(db, nil)
	_, err := ledger.GetTallies(context.Background(), "no-such-round")
	if !errors.Is(err, ErrRoundNotFound) {
		t.Errorf("Expected ErrRoundNotFound, got %v", err)
	}
}

func TestVoterCharity(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ledger := New(db, nil)

	charityID, voted, err := ledger.VoterCharity(ctx, roundID, "voter_1")
	if err != nil {
		t.Fatalf("VoterCharity failed: %v", err)
	}
	if voted || charityID != "" {
		t.Errorf("Expected no vote yet, got (%q, %v)", charityID, voted)
	}

	if _, err := ledger.CastVote(ctx, roundID, charities[3], "voter_1", CastMeta{}); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}

	charityID, voted, err = ledger.VoterCharity(ctx, roundID, "voter_1")
	if err != nil {
		t.Fatalf("VoterCharity failed: %v", err)
	}
	if !voted || charityID != charities[3] {
		t.Errorf("Expected vote for %s, got (%q, %v)", charities[3], charityID, voted)
	}
}

func TestCastVoteRecordsMeta(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ledger := New(db, nil)
	meta := CastMeta{IPHash: "abcd1234abcd1234", UserAgent: "test-agent/1.0"}
	if _, err := ledger.CastVote(ctx, roundID, charities[0], "voter_1", meta); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}

	var ipHash, userAgent string
	err := db.QueryRow(`
		SELECT ip_hash, user_agent FROM vote WHERE round_id = $1 AND voter_id = $2
	`, roundID, "voter_1").Scan(&ipHash, &userAgent)
	if err != nil {
		t.Fatalf("Failed to read vote row: %v", err)
	}
	if ipHash != meta.IPHash || userAgent != meta.UserAgent {
		t.Errorf("Stored meta (%q, %q) does not match (%q, %q)", ipHash, userAgent, meta.IPHash, meta.UserAgent)
	}
}

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/testutil"
)

// TestConcurrentVoteCasts verifies that simultaneous casts from distinct
// voters are all recorded and none are lost.
func TestConcurrentVoteCasts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	voteHandler := NewVoteHandler(db, cfg, nil)
	resultsHandler := NewResultsHandler(db, cfg, nil, nil)

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	numVoters := 20
	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			body := models.CastVoteRequest{CharityID: charities[idx%len(charities)]}
			req := castRequest(roundID, body, fmt.Sprintf("voter_%d", idx))
			w := httptest.NewRecorder()
			voteHandler.Cast(w, req)

			if w.Code == http.StatusCreated {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if int(successCount.Load()) != numVoters {
		t.Errorf("Expected %d successful casts, got %d", numVoters, successCount.Load())
	}

	req := testutil.MakeRequest("GET", "/rounds/"+roundID+"/tallies", nil, nil)
	req.SetPathValue("id", roundID)
	w := httptest.NewRecorder()
	resultsHandler.Tallies(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.TalliesResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.TotalVotes != numVoters {
		t.Errorf("Expected total %d, got %d", numVoters, resp.TotalVotes)
	}
	sum := 0
	for _, count := range resp.Tallies {
		sum += count
	}
	if sum != numVoters {
		t.Errorf("Counts sum to %d, want %d", sum, numVoters)
	}
}

// TestConcurrentSameVoterCasts verifies that one voter racing itself
// across tabs gets exactly one vote through.
func TestConcurrentSameVoterCasts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	voteHandler := NewVoteHandler(db, cfg, nil)

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	attempts := 10
	var created, conflicted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			body := models.CastVoteRequest{CharityID: charities[idx%len(charities)]}
			req := castRequest(roundID, body, "voter_racer")
			w := httptest.NewRecorder()
			voteHandler.Cast(w, req)

			switch w.Code {
			case http.StatusCreated:
				created.Add(1)
			case http.StatusConflict:
				conflicted.Add(1)
			default:
				t.Errorf("Unexpected status %d: %s", w.Code, w.Body.String())
			}
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("Expected exactly 1 created, got %d", created.Load())
	}
	if conflicted.Load() != int32(attempts-1) {
		t.Errorf("Expected %d conflicts, got %d", attempts-1, conflicted.Load())
	}
}

// TestConcurrentCloseRequests verifies the public close endpoint under
// a stampede: every caller gets 200 with the identical outcome.
func TestConcurrentCloseRequests(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewRoundHandler(db, cfg, nil)

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(-time.Minute))
	testutil.CastTestVote(t, db, roundID, charities[1], "voter_1")

	numClosers := 8
	winners := make([]string, numClosers)
	var failures atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numClosers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			req := testutil.MakeRequest("POST", "/rounds/"+roundID+"/close", nil, nil)
			req.SetPathValue("id", roundID)
			w := httptest.NewRecorder()
			handler.Close(w, req)

			if w.Code != http.StatusOK {
				failures.Add(1)
				t.Errorf("Closer %d got status %d: %s", idx, w.Code, w.Body.String())
				return
			}
			var resp models.CloseRoundResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				failures.Add(1)
				t.Errorf("Closer %d decode failed: %v", idx, err)
				return
			}
			winners[idx] = resp.WinnerID
		}(i)
	}
	wg.Wait()

	if failures.Load() > 0 {
		t.Fatalf("%d closers failed", failures.Load())
	}
	for i := 1; i < numClosers; i++ {
		if winners[i] != winners[0] {
			t.Errorf("Closer %d saw winner %s, closer 0 saw %s", i, winners[i], winners[0])
		}
	}
	if winners[0] != charities[1] {
		t.Errorf("Expected winner %s, got %s", charities[1], winners[0])
	}
}

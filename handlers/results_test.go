// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/notify"
	"github.com/idocharity/rounds/testutil"
)

func TestTalliesSnapshot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewResultsHandler(db, cfg, notify.NewHub(), nil)

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))
	testutil.CastTestVote(t, db, roundID, charities[0], "voter_1")
	testutil.CastTestVote(t, db, roundID, charities[0], "voter_2")
	testutil.CastTestVote(t, db, roundID, charities[3], "voter_3")

	req := testutil.MakeRequest("GET", "/rounds/"+roundID+"/tallies", nil, nil)
	req.SetPathValue("id", roundID)
	w := httptest.NewRecorder()
	handler.Tallies(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.TalliesResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.TotalVotes != 3 {
		t.Errorf("Expected total 3, got %d", resp.TotalVotes)
	}

	sum := 0
	for _, count := range resp.Tallies {
		sum += count
	}
	if sum != resp.TotalVotes {
		t.Errorf("Counts sum to %d but total is %d", sum, resp.TotalVotes)
	}
}

func TestTalliesUnknownRound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewResultsHandler(db, cfg, notify.NewHub(), nil)

	req := testutil.MakeRequest("GET", "/rounds/no-such-round/tallies", nil, nil)
	req.SetPathValue("id", "no-such-round")
	w := httptest.NewRecorder()
	handler.Tallies(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}

// TestStream drives the SSE endpoint end to end: initial snapshot, a
// pushed tally update, and termination on round completion.
func TestStream(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	hub := notify.NewHub()
	handler := NewResultsHandler(db, cfg, hub, nil)

	charities := testutil.SeedTestCharities(t, db, 5)
	roundID := testutil.CreateTestRound(t, db, charities, models.StatusActive, time.Now().Add(5*time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req := testutil.MakeRequest("GET", "/rounds/"+roundID+"/stream", nil, nil).WithContext(ctx)
	req.SetPathValue("id", roundID)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Stream(w, req)
	}()

	// The handler subscribes before its first write; publishing in a loop
	// until it exits covers the startup window without any sleep tuning.
	completed := models.Round{ID: roundID, Status: models.StatusCompleted}
	tallies := models.Tallies{RoundID: roundID, ByCharity: map[string]int{charities[0]: 1}, TotalVotes: 1}
publishing:
	for {
		select {
		case <-done:
			break publishing
		case <-ctx.Done():
			t.Fatal("Stream did not terminate on round completion")
		default:
			hub.PublishTallies(tallies)
			hub.PublishRound(completed)
			time.Sleep(5 * time.Millisecond)
		}
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: tallies") {
		t.Errorf("Expected a tallies event in stream, got:\n%s", body)
	}
	if !strings.Contains(body, "event: round") {
		t.Errorf("Expected a round event in stream, got:\n%s", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}
}

func TestStreamUnknownRound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewResultsHandler(db, cfg, notify.NewHub(), nil)

	req := testutil.MakeRequest("GET", "/rounds/no-such-round/stream", nil, nil)
	req.SetPathValue("id", "no-such-round")
	w := httptest.NewRecorder()
	handler.Stream(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}

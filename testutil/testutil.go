// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/idocharity/rounds/auth"
	"github.com/idocharity/rounds/cliparse"
	"github.com/idocharity/rounds/db"
	"github.com/idocharity/rounds/models"
	_ "modernc.org/sqlite"
)

// SetupTestDB creates a fresh SQLite database in a per-test temp dir with
// the full schema applied. A single connection keeps SQLite's writer
// semantics deterministic; concurrency tests exercise the transaction
// retry paths rather than driver-level races.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rounds_test.db")
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:         3321,
		DatabaseURL:  "test.db",
		DatabaseType: "sqlite",
		AdminKeySalt: "test-admin-salt",
	}
}

// SeedTestCharities inserts n charities and returns their IDs in name order.
func SeedTestCharities(t *testing.T, conn *sql.DB, n int) []string {
	t.Helper()

	names := []string{
		"Charity A", "Charity B", "Charity C", "Charity D", "Charity E",
		"Charity F", "Charity G", "Charity H",
	}
	if n > len(names) {
		t.Fatalf("SeedTestCharities supports at most %d charities, got %d", len(names), n)
	}

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := auth.GenerateID(12)
		if err != nil {
			t.Fatalf("Failed to generate charity id: %v", err)
		}
		_, err = conn.Exec(`
			INSERT INTO charity (id, name, description, region, website, category)
			VALUES ($1, $2, $3, 'Global', '', 'general')
		`, id, names[i], "Test charity "+names[i])
		if err != nil {
			t.Fatalf("Failed to seed charity: %v", err)
		}
		ids = append(ids, id)
	}

	return ids
}

// CreateTestRound inserts a round with the given charities and status.
// endTime controls expiry; pass a past time to create an expired round.
// The round's vote records are created at zero, one per charity in order.
func CreateTestRound(t *testing.T, conn *sql.DB, charityIDs []string, status string, endTime time.Time) string {
	t.Helper()

	roundID, err := auth.GenerateID(16)
	if err != nil {
		t.Fatalf("Failed to generate round id: %v", err)
	}

	var roundNumber int
	if err := conn.QueryRow(`SELECT COALESCE(MAX(round_number), 0) + 1 FROM round`).Scan(&roundNumber); err != nil {
		t.Fatalf("Failed to compute round number: %v", err)
	}

	startTime := endTime.Add(-5 * time.Minute)
	var completedAt *time.Time
	if status == models.StatusCompleted {
		completedAt = &endTime
	}

	_, err = conn.Exec(`
		INSERT INTO round (id, round_number, status, start_time, end_time, duration_minutes, total_votes, completed_at)
		VALUES ($1, $2, $3, $4, $5, 5, 0, $6)
	`, roundID, roundNumber, status, startTime, endTime, completedAt)
	if err != nil {
		t.Fatalf("Failed to create test round: %v", err)
	}

	for i, charityID := range charityIDs {
		_, err := conn.Exec(`
			INSERT INTO round_charity (round_id, charity_id, position, vote_count)
			VALUES ($1, $2, $3, 0)
		`, roundID, charityID, i)
		if err != nil {
			t.Fatalf("Failed to create vote record: %v", err)
		}
	}

	return roundID
}

// CastTestVote inserts a vote directly, keeping counters in sync.
func CastTestVote(t *testing.T, conn *sql.DB, roundID, charityID, voterID string) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO vote (round_id, voter_id, charity_id, cast_at)
		VALUES ($1, $2, $3, $4)
	`, roundID, voterID, charityID, time.Now())
	if err != nil {
		t.Fatalf("Failed to insert test vote: %v", err)
	}
	if _, err := conn.Exec(`
		UPDATE round_charity SET vote_count = vote_count + 1
		WHERE round_id = $1 AND charity_id = $2
	`, roundID, charityID); err != nil {
		t.Fatalf("Failed to bump vote record: %v", err)
	}
	if _, err := conn.Exec(`
		UPDATE round SET total_votes = total_votes + 1 WHERE id = $1
	`, roundID); err != nil {
		t.Fatalf("Failed to bump round total: %v", err)
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

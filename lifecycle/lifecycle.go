// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/idocharity/rounds/auth"
	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/notify"
)

var (
	ErrRoundNotFound      = errors.New("round not found")
	ErrActiveRoundExists  = errors.New("an active round already exists")
	ErrNotEnoughCharities = errors.New("catalog has fewer charities than a round requires")
)

// durationSchedule is the per-round duration in minutes, indexed by
// roundNumber-1 and clamped to the last entry. Durations never shrink
// once the schedule runs out.
var durationSchedule = []int{5, 10, 20, 30, 60}

const maxCloseRetries = 3

// Manager owns round creation, selection, and the close transition.
// Rounds are an append-only history: the only mutations are vote-count
// increments (via the ledger) and the single guarded close.
type Manager struct {
	db  *sql.DB
	pub notify.Publisher
}

func New(db *sql.DB, pub notify.Publisher) *Manager {
	return &Manager{db: db, pub: pub}
}

// DurationForRound returns the scheduled duration in minutes for a round
// number (1-based).
func DurationForRound(roundNumber int) int {
	idx := roundNumber - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(durationSchedule) {
		idx = len(durationSchedule) - 1
	}
	return durationSchedule[idx]
}

// CurrentRound returns the single active round, or nil if none exists.
// It never fabricates a round.
func (m *Manager) CurrentRound(ctx context.Context) (*models.Round, error) {
	var r models.Round
	err := m.db.QueryRowContext(ctx, `
		SELECT id, round_number, status, start_time, end_time, duration_minutes, total_votes
		FROM round
		WHERE status = $1
	`, models.StatusActive).Scan(
		&r.ID, &r.RoundNumber, &r.Status, &r.StartTime, &r.EndTime,
		&r.DurationMinutes, &r.TotalVotes,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active round: %w", err)
	}

	if r.CharityIDs, err = m.charityIDs(ctx, r.ID); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRound returns a round by ID; completed rounds include their winner
// and immutable results.
func (m *Manager) GetRound(ctx context.Context, roundID string) (*models.Round, error) {
	var r models.Round
	var winner sql.NullString
	var completedAt sql.NullTime
	err := m.db.QueryRowContext(ctx, `
		SELECT id, round_number, status, start_time, end_time, duration_minutes,
		       total_votes, winner_id, completed_at
		FROM round
		WHERE id = $1
	`, roundID).Scan(
		&r.ID, &r.RoundNumber, &r.Status, &r.StartTime, &r.EndTime,
		&r.DurationMinutes, &r.TotalVotes, &winner, &completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query round: %w", err)
	}

	if winner.Valid {
		r.WinnerID = &winner.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if r.CharityIDs, err = m.charityIDs(ctx, r.ID); err != nil {
		return nil, err
	}
	if r.Status == models.StatusCompleted {
		if r.Results, err = m.storedResults(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// CreateRound creates the next round: gapless numbering, a duration from
// the fixed schedule, and a panel sampled from the catalog without
// replacement. The round and all of its vote records are created in one
// transaction so a reader can never observe a partially created round.
func (m *Manager) CreateRound(ctx context.Context) (*models.Round, error) {
	roundID, err := auth.GenerateID(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate round ID: %w", err)
	}

	charityIDs, err := m.samplePanel(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM round WHERE status = $1
	`, models.StatusActive).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check active round: %w", err)
	}
	if exists > 0 {
		return nil, ErrActiveRoundExists
	}

	var roundNumber int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(round_number), 0) + 1 FROM round
	`).Scan(&roundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to compute round number: %w", err)
	}

	duration := DurationForRound(roundNumber)
	now := time.Now().UTC()
	r := models.Round{
		ID:              roundID,
		RoundNumber:     roundNumber,
		Status:          models.StatusActive,
		StartTime:       now,
		EndTime:         now.Add(time.Duration(duration) * time.Minute),
		DurationMinutes: duration,
		CharityIDs:      charityIDs,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO round (id, round_number, status, start_time, end_time, duration_minutes, total_votes)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
	`, r.ID, r.RoundNumber, r.Status, r.StartTime, r.EndTime, r.DurationMinutes)
	if err != nil {
		if isUniqueViolation(err) {
			// Another creator got in first; the partial index or the
			// round_number unique makes this round invisible, not partial.
			return nil, ErrActiveRoundExists
		}
		return nil, fmt.Errorf("failed to insert round: %w", err)
	}

	for i, charityID := range charityIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO round_charity (round_id, charity_id, position, vote_count)
			VALUES ($1, $2, $3, 0)
		`, r.ID, charityID, i)
		if err != nil {
			return nil, fmt.Errorf("failed to insert vote record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit round creation: %w", err)
	}

	slog.Info("round created", "round_id", r.ID, "round_number", r.RoundNumber,
		"duration_minutes", r.DurationMinutes)
	m.publish(r)
	return &r, nil
}

// CloseRound performs the active → completed transition. Idempotent and
// safe under concurrent uncoordinated callers: the transition itself is a
// guarded update applied only while the round is still active, and every
// caller - winner or loser of the race - returns the identical stored
// winner and results.
//
// Winner: strictly highest vote count; ties break to the lowest selection
// position. A round with zero votes therefore completes with the first
// selected charity as winner.
func (m *Manager) CloseRound(ctx context.Context, roundID string) (string, []models.CharityTally, error) {
	var lastErr error
	for attempt := 0; attempt < maxCloseRetries; attempt++ {
		winnerID, results, err := m.closeOnce(ctx, roundID)
		if err == nil || !isRetryable(err) {
			return winnerID, results, err
		}
		lastErr = err
	}
	return "", nil, fmt.Errorf("close transaction kept conflicting: %w", lastErr)
}

func (m *Manager) closeOnce(ctx context.Context, roundID string) (string, []models.CharityTally, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM round WHERE id = $1
	`, roundID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil, ErrRoundNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to query round status: %w", err)
	}

	if status == models.StatusCompleted {
		// Lost the race or called again later; the stored outcome is
		// authoritative. Release the transaction's connection first.
		tx.Rollback()
		return m.completedOutcome(ctx, roundID)
	}

	type record struct {
		charityID string
		position  int
		voteCount int
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT charity_id, position, vote_count
		FROM round_charity
		WHERE round_id = $1
		ORDER BY position
	`, roundID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to query vote records: %w", err)
	}

	var records []record
	for rows.Next() {
		var rec record
		if err := rows.Scan(&rec.charityID, &rec.position, &rec.voteCount); err != nil {
			rows.Close()
			return "", nil, fmt.Errorf("failed to scan vote record: %w", err)
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	if len(records) == 0 {
		return "", nil, ErrRoundNotFound
	}

	// Deterministic winner: highest count, earliest selection position on
	// ties. Zero votes resolves to position 0 by the same rule.
	winner := records[0]
	results := make([]models.CharityTally, len(records))
	for i, rec := range records {
		results[i] = models.CharityTally{CharityID: rec.charityID, VoteCount: rec.voteCount}
		if rec.voteCount > winner.voteCount {
			winner = rec
		}
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE round
		SET status = $1, winner_id = $2, completed_at = $3
		WHERE id = $4 AND status = $5
	`, models.StatusCompleted, winner.charityID, now, roundID, models.StatusActive)
	if err != nil {
		return "", nil, fmt.Errorf("failed to complete round: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// A concurrent closer committed between our status read and the
		// guarded update. Their outcome stands.
		tx.Rollback()
		return m.completedOutcome(ctx, roundID)
	}

	for i, rec := range records {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO round_result (round_id, charity_id, position, vote_count)
			VALUES ($1, $2, $3, $4)
		`, roundID, rec.charityID, i, rec.voteCount)
		if err != nil {
			return "", nil, fmt.Errorf("failed to store result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("failed to commit close: %w", err)
	}

	slog.Info("round closed", "round_id", roundID, "winner_id", winner.charityID)

	if r, err := m.GetRound(ctx, roundID); err == nil {
		m.publish(*r)
	}
	return winner.charityID, results, nil
}

// publish tolerates a nil publisher so read-only callers need not wire one.
func (m *Manager) publish(r models.Round) {
	if m.pub != nil {
		m.pub.PublishRound(r)
	}
}

// completedOutcome reads the stored winner and results of an already
// completed round.
func (m *Manager) completedOutcome(ctx context.Context, roundID string) (string, []models.CharityTally, error) {
	var winner sql.NullString
	err := m.db.QueryRowContext(ctx, `
		SELECT winner_id FROM round WHERE id = $1
	`, roundID).Scan(&winner)
	if err == sql.ErrNoRows {
		return "", nil, ErrRoundNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read winner: %w", err)
	}

	results, err := m.storedResults(ctx, roundID)
	if err != nil {
		return "", nil, err
	}
	if !winner.Valid || len(results) == 0 {
		// Completed rounds always carry their outcome; a gap here means a
		// concurrent closer has the status committed but we raced its
		// result rows. Retry via the caller.
		return "", nil, errConcurrentClose
	}
	return winner.String, results, nil
}

var errConcurrentClose = errors.New("round completed but outcome not yet readable")

func (m *Manager) storedResults(ctx context.Context, roundID string) ([]models.CharityTally, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT charity_id, vote_count
		FROM round_result
		WHERE round_id = $1
		ORDER BY position
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []models.CharityTally
	for rows.Next() {
		var t models.CharityTally
		if err := rows.Scan(&t.CharityID, &t.VoteCount); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// CompletedCount reports how many rounds have finished, for the public
// stats surface.
func (m *Manager) CompletedCount(ctx context.Context) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM round WHERE status = $1
	`, models.StatusCompleted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed rounds: %w", err)
	}
	return count, nil
}

func (m *Manager) charityIDs(ctx context.Context, roundID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT charity_id FROM round_charity WHERE round_id = $1 ORDER BY position
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query round charities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan charity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// samplePanel draws CharitiesPerRound charity ids uniformly without
// replacement. Any fair sampling is acceptable; selection order is what
// later breaks winner ties.
func (m *Manager) samplePanel(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM charity`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan charity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) < models.CharitiesPerRound {
		return nil, ErrNotEnoughCharities
	}

	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return ids[:models.CharitiesPerRound], nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errConcurrentClose) {
		return true
	}
	if errors.Is(err, ErrRoundNotFound) || errors.Is(err, ErrActiveRoundExists) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected")
}

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/notify"
)

var (
	// ErrAlreadyVoted is a terminal, user-visible outcome, not an error
	// condition worth logging.
	ErrAlreadyVoted = errors.New("voter has already cast a vote in this round")

	// ErrRoundNotFound means no ledger entry exists for the (round, charity)
	// pair.
	ErrRoundNotFound = errors.New("no vote record for round and charity")

	// ErrRoundClosed rejects casts against a completed round.
	ErrRoundClosed = errors.New("round is no longer accepting votes")
)

// maxCastRetries bounds transparent retries of transactions that lose a
// concurrency race before the failure surfaces.
const maxCastRetries = 3

// CastMeta is optional audit metadata recorded with a vote. It never
// participates in duplicate-vote decisions.
type CastMeta struct {
	IPHash    string
	UserAgent string
}

// Ledger is the vote ledger: per-(round, charity) counters plus the set of
// voter identifiers that have voted in each round. All mutation goes
// through CastVote; nothing else in the system writes vote counts.
type Ledger struct {
	db  *sql.DB
	pub notify.Publisher
}

func New(db *sql.DB, pub notify.Publisher) *Ledger {
	return &Ledger{db: db, pub: pub}
}

// CastVote atomically records one vote: the voter joins the round's voter
// set, the target VoteRecord's count increments, and the round's total
// increments, all in a single transaction. A voter identifier can succeed
// at most once per round regardless of the charity targeted; the
// duplicate check is the vote table's primary key, evaluated inside the
// same transaction as the mutation.
//
// Returns the post-commit tallies snapshot on success.
func (l *Ledger) CastVote(ctx context.Context, roundID, charityID, voterID string, meta CastMeta) (models.Tallies, error) {
	var lastErr error
	for attempt := 0; attempt < maxCastRetries; attempt++ {
		err := l.castOnce(ctx, roundID, charityID, voterID, meta)
		if err == nil {
			tallies, terr := l.GetTallies(ctx, roundID)
			if terr != nil {
				// The vote committed; the snapshot read failing only delays
				// the next emission.
				slog.Warn("tallies read after cast failed", "error", terr, "round_id", roundID)
				return models.Tallies{RoundID: roundID}, nil
			}
			if l.pub != nil {
				l.pub.PublishTallies(tallies)
			}
			return tallies, nil
		}
		if !isRetryable(err) {
			return models.Tallies{}, err
		}
		lastErr = err
	}
	return models.Tallies{}, fmt.Errorf("vote transaction kept conflicting: %w", lastErr)
}

func (l *Ledger) castOnce(ctx context.Context, roundID, charityID, voterID string, meta CastMeta) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The ledger entry must exist and its round must still be active.
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT r.status
		FROM round_charity rc
		JOIN round r ON r.id = rc.round_id
		WHERE rc.round_id = $1 AND rc.charity_id = $2
	`, roundID, charityID).Scan(&status)

	if err == sql.ErrNoRows {
		return ErrRoundNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check vote record: %w", err)
	}
	if status != models.StatusActive {
		return ErrRoundClosed
	}

	// The primary key on (round_id, voter_id) makes this the atomic
	// "add to set only if not already a member" step.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO vote (round_id, voter_id, charity_id, cast_at, ip_hash, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, roundID, voterID, charityID, time.Now().UTC(), nullable(meta.IPHash), nullable(meta.UserAgent))

	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("failed to record voter: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE round_charity
		SET vote_count = vote_count + 1
		WHERE round_id = $1 AND charity_id = $2
	`, roundID, charityID)
	if err != nil {
		return fmt.Errorf("failed to increment vote count: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrRoundNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE round
		SET total_votes = total_votes + 1
		WHERE id = $1
	`, roundID)
	if err != nil {
		return fmt.Errorf("failed to increment round total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vote: %w", err)
	}
	return nil
}

// GetTallies returns a full snapshot of one round's per-charity vote
// counts plus the round's running total. Snapshot read only; no
// cross-record atomicity is promised beyond single-row consistency.
func (l *Ledger) GetTallies(ctx context.Context, roundID string) (models.Tallies, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT charity_id, vote_count
		FROM round_charity
		WHERE round_id = $1
		ORDER BY position
	`, roundID)
	if err != nil {
		return models.Tallies{}, fmt.Errorf("failed to query tallies: %w", err)
	}
	defer rows.Close()

	t := models.Tallies{RoundID: roundID, ByCharity: make(map[string]int)}
	for rows.Next() {
		var charityID string
		var count int
		if err := rows.Scan(&charityID, &count); err != nil {
			return models.Tallies{}, fmt.Errorf("failed to scan tally: %w", err)
		}
		t.ByCharity[charityID] = count
	}
	if err := rows.Err(); err != nil {
		return models.Tallies{}, err
	}
	if len(t.ByCharity) == 0 {
		return models.Tallies{}, ErrRoundNotFound
	}

	err = l.db.QueryRowContext(ctx, `
		SELECT total_votes FROM round WHERE id = $1
	`, roundID).Scan(&t.TotalVotes)
	if err != nil {
		return models.Tallies{}, fmt.Errorf("failed to read round total: %w", err)
	}

	return t, nil
}

// VoterCharity reports which charity a voter backed in a round, if any.
// This is the authoritative source for "have I voted"; client-side caches
// reconcile against it.
func (l *Ledger) VoterCharity(ctx context.Context, roundID, voterID string) (string, bool, error) {
	var charityID string
	err := l.db.QueryRowContext(ctx, `
		SELECT charity_id FROM vote WHERE round_id = $1 AND voter_id = $2
	`, roundID, voterID).Scan(&charityID)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query voter: %w", err)
	}
	return charityID, true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation matches constraint errors from both supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// isRetryable matches transient lock/serialization failures worth a
// bounded transparent retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyVoted) || errors.Is(err, ErrRoundNotFound) || errors.Is(err, ErrRoundClosed) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected")
}

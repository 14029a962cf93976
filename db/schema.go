// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
// The DDL is restricted to the dialect shared by SQLite and PostgreSQL.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Charity catalog (static reference data)
CREATE TABLE IF NOT EXISTS charity (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL,
    region TEXT NOT NULL,
    website TEXT NOT NULL,
    category TEXT NOT NULL
);

-- Rounds (append-only history; never deleted)
CREATE TABLE IF NOT EXISTS round (
    id TEXT PRIMARY KEY,
    round_number INTEGER NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
    start_time TIMESTAMP NOT NULL,
    end_time TIMESTAMP NOT NULL,
    duration_minutes INTEGER NOT NULL,
    total_votes INTEGER NOT NULL DEFAULT 0,
    winner_id TEXT REFERENCES charity(id),
    completed_at TIMESTAMP
);

-- At most one active round at any time
CREATE UNIQUE INDEX IF NOT EXISTS idx_round_single_active ON round(status) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_round_status ON round(status);

-- Vote ledger: one record per (round, charity), created with the round.
-- position is the charity's index in the round's selection order.
CREATE TABLE IF NOT EXISTS round_charity (
    round_id TEXT NOT NULL REFERENCES round(id) ON DELETE CASCADE,
    charity_id TEXT NOT NULL REFERENCES charity(id),
    position INTEGER NOT NULL,
    vote_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (round_id, charity_id),
    UNIQUE (round_id, position)
);

CREATE INDEX IF NOT EXISTS idx_round_charity_round ON round_charity(round_id);

-- Voter membership: the primary key is what makes a duplicate cast
-- impossible regardless of the charity targeted.
CREATE TABLE IF NOT EXISTS vote (
    round_id TEXT NOT NULL REFERENCES round(id) ON DELETE CASCADE,
    voter_id TEXT NOT NULL,
    charity_id TEXT NOT NULL REFERENCES charity(id),
    cast_at TIMESTAMP NOT NULL,
    ip_hash TEXT,
    user_agent TEXT,
    PRIMARY KEY (round_id, voter_id)
);

CREATE INDEX IF NOT EXISTS idx_vote_round ON vote(round_id);
CREATE INDEX IF NOT EXISTS idx_vote_round_charity ON vote(round_id, charity_id);

-- Immutable close snapshot, written once in the closing transaction
CREATE TABLE IF NOT EXISTS round_result (
    round_id TEXT NOT NULL REFERENCES round(id) ON DELETE CASCADE,
    charity_id TEXT NOT NULL REFERENCES charity(id),
    position INTEGER NOT NULL,
    vote_count INTEGER NOT NULL,
    PRIMARY KEY (round_id, charity_id)
);

CREATE INDEX IF NOT EXISTS idx_round_result_round ON round_result(round_id);
`

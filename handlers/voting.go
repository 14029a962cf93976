// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/idocharity/rounds/auth"
	"github.com/idocharity/rounds/cliparse"
	"github.com/idocharity/rounds/ledger"
	"github.com/idocharity/rounds/middleware"
	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/notify"
)

type VoteHandler struct {
	cfg    cliparse.Config
	ledger *ledger.Ledger
}

func NewVoteHandler(db *sql.DB, cfg cliparse.Config, pub notify.Publisher) *VoteHandler {
	return &VoteHandler{
		cfg:    cfg,
		ledger: ledger.New(db, pub),
	}
}

// Cast handles POST /rounds/{id}/votes
// One vote per voter per round. A duplicate cast returns 409 and leaves
// the ledger untouched, regardless of which charity the duplicate names.
func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	voterID := r.Header.Get("X-Voter-ID")
	if voterID == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Voter-ID header is required")
		return
	}

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.CharityID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "charity_id is required")
		return
	}

	meta := ledger.CastMeta{
		IPHash:    auth.HashIP(middleware.GetClientIP(r), h.cfg.AdminKeySalt),
		UserAgent: r.UserAgent(),
	}

	tallies, err := h.ledger.CastVote(r.Context(), roundID, req.CharityID, voterID, meta)
	switch {
	case errors.Is(err, ledger.ErrAlreadyVoted):
		middleware.ErrorResponse(w, http.StatusConflict, "You have already voted in this round")
		return
	case errors.Is(err, ledger.ErrRoundNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Round or charity not found")
		return
	case errors.Is(err, ledger.ErrRoundClosed):
		middleware.ErrorResponse(w, http.StatusConflict, "Round is closed")
		return
	case err != nil:
		slog.Error("failed to cast vote", "error", err, "round_id", roundID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	slog.Info("vote cast", "round_id", roundID, "charity_id", req.CharityID)

	middleware.JSONResponse(w, http.StatusCreated, models.CastVoteResponse{
		CharityID:  req.CharityID,
		TotalVotes: tallies.TotalVotes,
		Message:    "Vote recorded",
	})
}

// MyVote handles GET /rounds/{id}/votes/me
// Lets a reconnecting client reconcile its cached ballot against the
// ledger, which is always authoritative.
func (h *VoteHandler) MyVote(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	voterID := r.Header.Get("X-Voter-ID")
	if voterID == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Voter-ID header is required")
		return
	}

	charityID, voted, err := h.ledger.VoterCharity(r.Context(), roundID, voterID)
	if err != nil {
		slog.Error("failed to look up vote", "error", err, "round_id", roundID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.MyVoteResponse{
		HasVoted:  voted,
		CharityID: charityID,
	})
}

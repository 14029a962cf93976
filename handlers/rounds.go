// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/idocharity/rounds/auth"
	"github.com/idocharity/rounds/catalog"
	"github.com/idocharity/rounds/cliparse"
	"github.com/idocharity/rounds/ledger"
	"github.com/idocharity/rounds/lifecycle"
	"github.com/idocharity/rounds/middleware"
	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/notify"
)

// AdminSubjectRoundCreate is the HMAC subject for the round-create key.
const AdminSubjectRoundCreate = "round-create"

type RoundHandler struct {
	cfg     cliparse.Config
	manager *lifecycle.Manager
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
}

func NewRoundHandler(db *sql.DB, cfg cliparse.Config, pub notify.Publisher) *RoundHandler {
	return &RoundHandler{
		cfg:     cfg,
		manager: lifecycle.New(db, pub),
		catalog: catalog.New(db),
		ledger:  ledger.New(db, pub),
	}
}

// Current handles GET /rounds/current
// Returns the single active round with its charities and live tallies.
// Clients treat 404 and 503 identically: show the waiting state.
func (h *RoundHandler) Current(w http.ResponseWriter, r *http.Request) {
	round, err := h.manager.CurrentRound(r.Context())
	if err != nil {
		slog.Error("failed to query current round", "error", err)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}
	if round == nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "No active round")
		return
	}

	charities, err := h.catalog.GetMany(r.Context(), round.CharityIDs)
	if err != nil {
		slog.Error("failed to resolve round charities", "error", err, "round_id", round.ID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	tallies, err := h.ledger.GetTallies(r.Context(), round.ID)
	if err != nil {
		slog.Error("failed to read tallies", "error", err, "round_id", round.ID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, map[string]interface{}{
		"round":     round,
		"charities": charities,
		"tallies":   tallies.ByCharity,
	})
}

// Get handles GET /rounds/{id}
// Completed rounds include winner and immutable results.
func (h *RoundHandler) Get(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	round, err := h.manager.GetRound(r.Context(), roundID)
	if errors.Is(err, lifecycle.ErrRoundNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Round not found")
		return
	}
	if err != nil {
		slog.Error("failed to query round", "error", err, "round_id", roundID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, round)
}

// Create handles POST /rounds (admin operation)
// Creates the next round when none is active. The round and all of its
// vote records become visible atomically.
func (h *RoundHandler) Create(w http.ResponseWriter, r *http.Request) {
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(AdminSubjectRoundCreate, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	round, err := h.manager.CreateRound(r.Context())
	if errors.Is(err, lifecycle.ErrActiveRoundExists) {
		middleware.ErrorResponse(w, http.StatusConflict, "A round is already active")
		return
	}
	if errors.Is(err, lifecycle.ErrNotEnoughCharities) {
		middleware.ErrorResponse(w, http.StatusConflict, "Charity catalog is too small for a round")
		return
	}
	if err != nil {
		slog.Error("failed to create round", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create round")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.CreateRoundResponse{Round: *round})
}

// Close handles POST /rounds/{id}/close
// Public and idempotent: any client that detects expiry may call it, and
// every caller receives the identical stored outcome.
func (h *RoundHandler) Close(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	winnerID, results, err := h.manager.CloseRound(r.Context(), roundID)
	if errors.Is(err, lifecycle.ErrRoundNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Round not found")
		return
	}
	if err != nil {
		slog.Error("failed to close round", "error", err, "round_id", roundID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.CloseRoundResponse{
		RoundID:  roundID,
		WinnerID: winnerID,
		Results:  results,
	})
}

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/idocharity/rounds/cliparse"
	"github.com/idocharity/rounds/ledger"
	"github.com/idocharity/rounds/middleware"
	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/notify"
)

type ResultsHandler struct {
	cfg    cliparse.Config
	ledger *ledger.Ledger
	hub    *notify.Hub
}

func NewResultsHandler(db *sql.DB, cfg cliparse.Config, hub *notify.Hub, pub notify.Publisher) *ResultsHandler {
	return &ResultsHandler{
		cfg:    cfg,
		ledger: ledger.New(db, pub),
		hub:    hub,
	}
}

// Tallies handles GET /rounds/{id}/tallies
// Returns a consistent snapshot: per-charity counts always sum to the
// round total, never a torn read.
func (h *ResultsHandler) Tallies(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	tallies, err := h.ledger.GetTallies(r.Context(), roundID)
	if errors.Is(err, ledger.ErrRoundNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Round not found")
		return
	}
	if err != nil {
		slog.Error("failed to read tallies", "error", err, "round_id", roundID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.TalliesResponse{
		RoundID:    roundID,
		TotalVotes: tallies.TotalVotes,
		Tallies:    tallies.ByCharity,
	})
}

// Stream handles GET /rounds/{id}/stream
// Server-sent events: an initial tally snapshot, then a "tallies" event
// per ledger change and a "round" event when the round completes. Slow
// readers get coalesced snapshots, never a backlog.
func (h *ResultsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	initial, err := h.ledger.GetTallies(r.Context(), roundID)
	if errors.Is(err, ledger.ErrRoundNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Round not found")
		return
	}
	if err != nil {
		slog.Error("failed to read tallies", "error", err, "round_id", roundID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	tallyCh, cancelTallies := h.hub.SubscribeTallies(roundID)
	defer cancelTallies()
	roundCh, cancelRounds := h.hub.SubscribeRounds()
	defer cancelRounds()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "tallies", initial)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case t := <-tallyCh:
			writeEvent(w, "tallies", t)
			flusher.Flush()
		case round := <-roundCh:
			if round.ID != roundID {
				continue
			}
			writeEvent(w, "round", round)
			flusher.Flush()
			if round.Status == models.StatusCompleted {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode event", "error", err, "event", event)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

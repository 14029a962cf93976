// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/idocharity/rounds/cliparse"
	"github.com/idocharity/rounds/handlers"
	"github.com/idocharity/rounds/middleware"
	"github.com/idocharity/rounds/notify"
)

func NewRouter(db *sql.DB, cfg cliparse.Config, hub *notify.Hub, pub notify.Publisher) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	roundHandler := handlers.NewRoundHandler(db, cfg, pub)
	voteHandler := handlers.NewVoteHandler(db, cfg, pub)
	resultsHandler := handlers.NewResultsHandler(db, cfg, hub, pub)
	charityHandler := handlers.NewCharityHandler(db, cfg)
	donationHandler := handlers.NewDonationHandler(db, cfg)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Round lifecycle
	mux.HandleFunc("GET /rounds/current", middleware.WithLogging(roundHandler.Current))
	mux.HandleFunc("POST /rounds", middleware.WithLogging(roundHandler.Create))
	mux.HandleFunc("GET /rounds/{id}", middleware.WithLogging(roundHandler.Get))
	mux.HandleFunc("POST /rounds/{id}/close", middleware.WithLogging(roundHandler.Close))

	// Voting (public, requires X-Voter-ID)
	mux.HandleFunc("POST /rounds/{id}/votes", middleware.WithLogging(voteHandler.Cast))
	mux.HandleFunc("GET /rounds/{id}/votes/me", middleware.WithLogging(voteHandler.MyVote))

	// Results (public)
	mux.HandleFunc("GET /rounds/{id}/tallies", middleware.WithLogging(resultsHandler.Tallies))
	mux.HandleFunc("GET /rounds/{id}/stream", resultsHandler.Stream)

	// Charity catalog
	mux.HandleFunc("GET /charities", middleware.WithLogging(charityHandler.List))
	mux.HandleFunc("GET /charities/{id}", middleware.WithLogging(charityHandler.Get))

	// Donation history
	mux.HandleFunc("GET /donations", middleware.WithLogging(donationHandler.History))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("idocharity rounds API v1"))
	})

	return mux
}

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/idocharity/rounds/cliparse"
	"github.com/idocharity/rounds/donations"
	"github.com/idocharity/rounds/lifecycle"
	"github.com/idocharity/rounds/middleware"
)

type DonationHandler struct {
	cfg     cliparse.Config
	manager *lifecycle.Manager
}

func NewDonationHandler(db *sql.DB, cfg cliparse.Config) *DonationHandler {
	return &DonationHandler{
		cfg:     cfg,
		manager: lifecycle.New(db, nil),
	}
}

// History handles GET /donations?period=all|week|month
// Past payouts with proof links, newest first.
func (h *DonationHandler) History(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = donations.PeriodAll
	}
	if period != donations.PeriodAll && period != donations.PeriodWeek && period != donations.PeriodMonth {
		middleware.ErrorResponse(w, http.StatusBadRequest, "period must be all, week, or month")
		return
	}

	roundsClosed, err := h.manager.CompletedCount(r.Context())
	if err != nil {
		slog.Error("failed to count completed rounds", "error", err)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, donations.Summary(period, time.Now(), roundsClosed))
}

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/idocharity/rounds/catalog"
	"github.com/idocharity/rounds/cliparse"
	"github.com/idocharity/rounds/middleware"
)

type CharityHandler struct {
	cfg     cliparse.Config
	catalog *catalog.Catalog
}

func NewCharityHandler(db *sql.DB, cfg cliparse.Config) *CharityHandler {
	return &CharityHandler{
		cfg:     cfg,
		catalog: catalog.New(db),
	}
}

// List handles GET /charities
func (h *CharityHandler) List(w http.ResponseWriter, r *http.Request) {
	charities, err := h.catalog.List(r.Context())
	if err != nil {
		slog.Error("failed to list charities", "error", err)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, charities)
}

// Get handles GET /charities/{id}
func (h *CharityHandler) Get(w http.ResponseWriter, r *http.Request) {
	charityID := r.PathValue("id")
	if charityID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "charity id is required")
		return
	}

	charity, err := h.catalog.Get(r.Context(), charityID)
	if errors.Is(err, catalog.ErrCharityNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Charity not found")
		return
	}
	if err != nil {
		slog.Error("failed to get charity", "error", err, "charity_id", charityID)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Storage unavailable, try again")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, charity)
}

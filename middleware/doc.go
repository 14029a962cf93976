// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and response helpers.

# Logging

WithLogging wraps handlers with structured request/completion logging:

	mux.HandleFunc("GET /rounds/current", middleware.WithLogging(handler.Current))

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, payload)
	middleware.ErrorResponse(w, http.StatusNotFound, "Round not found")
	err := middleware.ParseJSONBody(r, &req)

# CORS

CORS wraps the whole mux for the browser frontend, allowing the
X-Voter-ID and X-Admin-Key headers and answering preflight requests.

# Client IP

GetClientIP resolves the caller's address through X-Forwarded-For and
X-Real-IP before falling back to RemoteAddr. Used only to build the
salted audit hash stored with votes.
*/
package middleware

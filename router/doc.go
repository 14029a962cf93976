// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the IDO Charity rounds API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, hub, pub)

# Endpoints

Health:

	GET /health

Round lifecycle:

	GET  /rounds/current    - Active round with charities and tallies
	POST /rounds            - Create next round (admin, X-Admin-Key)
	GET  /rounds/{id}       - Round lookup, results once completed
	POST /rounds/{id}/close - Close an expired round (public, idempotent)

Voting (public, requires X-Voter-ID):

	POST /rounds/{id}/votes    - Cast a vote
	GET  /rounds/{id}/votes/me - This voter's ballot in the round

Results (public):

	GET /rounds/{id}/tallies - Tally snapshot
	GET /rounds/{id}/stream  - Server-sent events stream

Catalog and donations:

	GET /charities      - Full charity catalog
	GET /charities/{id} - Single charity
	GET /donations      - Donation history (?period=all|week|month)

# Handler Initialization

The router creates handler instances with dependency injection. The
notify.Hub feeds the SSE stream; the notify.Publisher is what mutating
handlers emit snapshots through (the hub itself, or a Redis bridge
wrapping it when fanout across instances is configured).
*/
package router

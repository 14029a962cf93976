// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the IDO Charity rounds server.

The server runs recurring charity voting rounds: each round presents five
charities, collects one vote per voter, and on expiry is closed into an
immutable result whose winner receives the round's donation.

# Starting the Server

The server reads configuration from CLI flags, the environment, or a
local .env file:

	ADMIN_KEY_SALT=... go run .

Or with flags:

	go run . -p 3321 -t sqlite -d rounds.db --admin-salt ...

# Configuration

Required settings:

  - ADMIN_KEY_SALT (--admin-salt): Secret for admin key HMAC

Optional settings:

  - PORT (-p): Server port (default: 3321)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - DATABASE_URL (-d): SQLite path or PostgreSQL connection string
  - REDIS_URL (-r): Enables cross-instance snapshot fanout

# Architecture

The server uses a handler-based architecture with dependency injection:

  - handlers: HTTP request handlers (rounds, voting, results, charities, donations)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, JSON helpers
  - models: Domain and request/response types
  - lifecycle: Round creation and the guarded close transition
  - ledger: The atomic vote ledger
  - catalog: Charity catalog and seeding
  - notify: In-process snapshot hub and optional Redis bridge
  - coordinator: Client-side round session state machine
  - localstate: Client-side persistent voter state
  - auth: ID generation, admin keys, IP hashing
  - db: Schema creation
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package catalog serves the static charity reference data that round
// panels are sampled from. Seed populates the standard panel on an empty
// database and is safe to run on every startup.
package catalog

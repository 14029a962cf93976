// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides ID generation, admin key validation, and IP hashing.

# ID Generation

Random hex IDs for server-side records:

	roundID, err := auth.GenerateID(16) // 32 hex chars

Opaque voter identifiers (normally minted client-side and stored locally):

	voterID := auth.NewVoterID() // "voter_<uuid>"

# Admin Keys

Round administration (creating rounds out of band) is authorized by a
deterministic HMAC key derived from a server-side salt:

	key := auth.GenerateAdminKey("round-create", cfg.AdminKeySalt)
	err := auth.ValidateAdminKey("round-create", key, cfg.AdminKeySalt)

No key storage is required; possession of the salt is the secret.

# IP Hashing

HashIP produces a short salted one-way hash recorded as vote audit
metadata. It plays no part in duplicate-vote prevention, which is keyed
on voter identifiers alone.
*/
package auth

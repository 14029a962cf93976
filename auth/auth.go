// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidAdminKey = errors.New("invalid admin key")

// GenerateID creates a random hex ID of the specified byte length
func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewVoterID creates an opaque voter identifier. Voter IDs are normally
// minted on the client and persisted locally; the server only ever treats
// them as opaque strings for duplicate-vote prevention.
func NewVoterID() string {
	return "voter_" + uuid.NewString()
}

// GenerateAdminKey creates an HMAC-based key authorizing round
// administration. Deterministic and verifiable without storage.
func GenerateAdminKey(subject, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(subject))
	sum := h.Sum(nil)
	// URL-safe base64 without padding for cleaner keys
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateAdminKey checks the provided admin key in constant time
func ValidateAdminKey(subject, adminKey, salt string) error {
	expected := GenerateAdminKey(subject, salt)
	if !hmac.Equal([]byte(adminKey), []byte(expected)) {
		return ErrInvalidAdminKey
	}
	return nil
}

// HashIP creates a one-way salted hash of an IP address for privacy.
// Stored alongside votes as audit metadata only; never used for
// duplicate-vote decisions.
func HashIP(ip, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(ip))
	sum := h.Sum(nil)
	// First 16 hex chars (64 bits) is enough for deduplication
	return hex.EncodeToString(sum[:8])
}

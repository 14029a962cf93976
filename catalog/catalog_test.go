// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/testutil"
)

func TestSeedAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	catalog := New(db)
	if err := catalog.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	charities, err := catalog.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(charities) != models.CharitiesPerRound {
		t.Fatalf("Expected %d seeded charities, got %d", models.CharitiesPerRound, len(charities))
	}

	// Sorted by name
	for i := 1; i < len(charities); i++ {
		if charities[i-1].Name > charities[i].Name {
			t.Errorf("List not sorted: %q before %q", charities[i-1].Name, charities[i].Name)
		}
	}

	// Seeding again is a no-op
	if err := catalog.Seed(ctx); err != nil {
		t.Fatalf("Second Seed failed: %v", err)
	}
	again, err := catalog.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(again) != len(charities) {
		t.Errorf("Second seed changed catalog size: %d -> %d", len(charities), len(again))
	}
}

func TestGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	ids := testutil.SeedTestCharities(t, db, 3)
	catalog := New(db)

	ch, err := catalog.Get(ctx, ids[1])
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ch.ID != ids[1] {
		t.Errorf("Expected id %s, got %s", ids[1], ch.ID)
	}

	_, err = catalog.Get(ctx, "no-such-charity")
	if !errors.Is(err, ErrCharityNotFound) {
		t.Errorf("Expected ErrCharityNotFound, got %v", err)
	}
}

func TestGetManyPreservesOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	ids := testutil.SeedTestCharities(t, db, 5)
	catalog := New(db)

	// Request in reverse of insertion order
	want := []string{ids[4], ids[2], ids[0]}
	charities, err := catalog.GetMany(ctx, want)
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(charities) != len(want) {
		t.Fatalf("Expected %d charities, got %d", len(want), len(charities))
	}
	for i, ch := range charities {
		if ch.ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], ch.ID)
		}
	}

	_, err = catalog.GetMany(ctx, []string{ids[0], "no-such-charity"})
	if !errors.Is(err, ErrCharityNotFound) {
		t.Errorf("Expected ErrCharityNotFound for unknown id, got %v", err)
	}
}

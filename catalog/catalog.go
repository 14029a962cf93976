// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/idocharity/rounds/auth"
	"github.com/idocharity/rounds/models"
)

var ErrCharityNotFound = errors.New("charity not found")

// Catalog exposes the static charity reference data. Read-only to the
// core; rows are only ever written by Seed.
type Catalog struct {
	db *sql.DB
}

func New(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// List returns all charities ordered by name.
func (c *Catalog) List(ctx context.Context) ([]models.Charity, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, description, region, website, category
		FROM charity
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query charities: %w", err)
	}
	defer rows.Close()

	var charities []models.Charity
	for rows.Next() {
		var ch models.Charity
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.Region, &ch.Website, &ch.Category); err != nil {
			return nil, fmt.Errorf("failed to scan charity: %w", err)
		}
		charities = append(charities, ch)
	}
	return charities, rows.Err()
}

// Get returns one charity by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*models.Charity, error) {
	var ch models.Charity
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, description, region, website, category
		FROM charity
		WHERE id = $1
	`, id).Scan(&ch.ID, &ch.Name, &ch.Description, &ch.Region, &ch.Website, &ch.Category)

	if err == sql.ErrNoRows {
		return nil, ErrCharityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query charity: %w", err)
	}
	return &ch, nil
}

// GetMany resolves charities preserving the order of ids. Unknown ids
// are an error: rounds only ever reference catalog entries.
func (c *Catalog) GetMany(ctx context.Context, ids []string) ([]models.Charity, error) {
	charities := make([]models.Charity, 0, len(ids))
	for _, id := range ids {
		ch, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		charities = append(charities, *ch)
	}
	return charities, nil
}

// Seed inserts the standard charity panel if the catalog is empty.
// Safe to call on every startup.
func (c *Catalog) Seed(ctx context.Context) error {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM charity`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count charities: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, ch := range defaultCharities {
		id, err := auth.GenerateID(12)
		if err != nil {
			return fmt.Errorf("failed to generate charity ID: %w", err)
		}
		_, err = c.db.ExecContext(ctx, `
			INSERT INTO charity (id, name, description, region, website, category)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, ch.Name, ch.Description, ch.Region, ch.Website, ch.Category)
		if err != nil {
			return fmt.Errorf("failed to seed charity %q: %w", ch.Name, err)
		}
	}

	slog.Info("charity catalog seeded", "count", len(defaultCharities))
	return nil
}

var defaultCharities = []models.Charity{
	{
		Name:        "Save the Children",
		Description: "Provides support for children's health, education, and protection worldwide.",
		Region:      "Global",
		Website:     "https://www.savethechildren.org/",
		Category:    "Children",
	},
	{
		Name:        "WaterAid",
		Description: "Brings clean water, sanitation, and hygiene to underserved communities.",
		Region:      "Global",
		Website:     "https://www.wateraid.org/",
		Category:    "Water & Sanitation",
	},
	{
		Name:        "Children's Cancer Cause",
		Description: "Advocates for research, treatment, and policy support for children with cancer.",
		Region:      "Global",
		Website:     "https://www.childrenscancercause.org/",
		Category:    "Health",
	},
	{
		Name:        "One Earth",
		Description: "Promotes climate solutions and biodiversity conservation for a sustainable future.",
		Region:      "Global",
		Website:     "https://www.oneearth.org/",
		Category:    "Environment",
	},
	{
		Name:        "ASPCA",
		Description: "Rescues animals, fights cruelty, and promotes adoption.",
		Region:      "Global",
		Website:     "https://www.aspca.org/",
		Category:    "Animals",
	},
}

// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package donations serves the manually curated payout history. Entries
// are appended by hand after each round's donation is sent; the table is
// deliberately not derived from round records so it can carry external
// references (tweet, transaction) the database never sees.
package donations

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/idocharity/rounds/models"
)

// Period filter values accepted by History.
const (
	PeriodAll   = "all"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

const dateLayout = "01/02/2006"

// history holds donations newest-first. Append new entries at the top
// after each payout.
var history = []models.Donation{
	{
		RoundNumber:     1,
		Date:            "09/05/2025",
		CharityName:     "One Earth",
		AmountUSD:       300,
		Votes:           64,
		TotalVotes:      102,
		DurationMinutes: 10,
		TweetURL:        "https://x.com/IDOCharity/status/1964089658402324629",
		TransactionURL:  "https://solscan.io/tx/5gM6NB8CRLzk2yhppm6pbK7o2NyAvMHamLZm9Mfo3YJNRf8FpG5ZmVQxtMJyi4NaEA7RvAgAp9PGkDrfuTryU6GF",
	},
}

// History returns the curated donations filtered to a period, with
// display amounts populated. Unknown periods fall back to all entries.
func History(period string, now time.Time) []models.Donation {
	var cutoff time.Time
	switch period {
	case PeriodWeek:
		cutoff = now.AddDate(0, 0, -7)
	case PeriodMonth:
		cutoff = now.AddDate(0, -1, 0)
	}

	out := make([]models.Donation, 0, len(history))
	for _, d := range history {
		if !cutoff.IsZero() {
			when, err := time.Parse(dateLayout, d.Date)
			if err != nil || when.Before(cutoff) {
				continue
			}
		}
		d.Amount = "$" + humanize.Comma(int64(d.AmountUSD))
		out = append(out, d)
	}
	return out
}

// Summary builds the full donations response: filtered entries plus
// aggregate totals across all history (totals ignore the filter so the
// headline numbers never shrink when a narrow period is selected).
func Summary(period string, now time.Time, roundsClosed int) models.DonationsResponse {
	var totalAmount, totalVotes int64
	for _, d := range history {
		totalAmount += int64(d.AmountUSD)
		totalVotes += int64(d.TotalVotes)
	}

	return models.DonationsResponse{
		Donations:    History(period, now),
		TotalAmount:  "$" + humanize.Comma(totalAmount),
		TotalVotes:   humanize.Comma(totalVotes),
		RoundsClosed: roundsClosed,
	}
}

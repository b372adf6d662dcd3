package models

import (
	"fmt"
	"time"
)

// dealEndCutoff drops listings that end too soon for a buyer to act on.
const dealEndCutoff = 2 * time.Minute

// DealListing is one auction surfaced by the curated deals feed. Price is
// always positive after resolution; zero-price items are either re-resolved
// via an item-detail lookup or dropped.
type DealListing struct {
	ItemID   string    `json:"id"`
	Title    string    `json:"title"`
	Price    string    `json:"price"`
	Currency string    `json:"currency"`
	TimeLeft string    `json:"time_left"`
	EndDate  time.Time `json:"end_date"`
	Link     string    `json:"link"`
	Image    string    `json:"image"`
}

// AuctionListing is the soonest-ending auction found for one tracked card
// by the bulk auction scan.
type AuctionListing struct {
	CardName string `json:"card_name"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	TimeLeft string `json:"time_left"`
	Link     string `json:"link"`
	Image    string `json:"image"`
}

// FormatTimeLeft renders the remaining time until end as a compact countdown
// string. Returns "" for anything ending within two minutes of now, which
// callers treat as "exclude this listing".
func FormatTimeLeft(end, now time.Time) string {
	diff := end.Sub(now)
	if diff < dealEndCutoff {
		return ""
	}

	days := int(diff.Hours()) / 24
	hours := int(diff.Hours()) % 24
	minutes := int(diff.Minutes()) % 60
	seconds := int(diff.Seconds()) % 60

	if days >= 1 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours >= 1 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// FormatCountdown is the looser auction-scan variant of FormatTimeLeft: it
// never excludes a listing, it only describes it.
func FormatCountdown(end, now time.Time) string {
	diff := end.Sub(now)
	if diff <= 0 {
		return "Ending very soon"
	}

	hours := int(diff.Hours())
	minutes := int(diff.Minutes()) % 60
	if hours >= 24 {
		return fmt.Sprintf("%dd %dh left", hours/24, hours%24)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm left", hours, minutes)
	}
	return fmt.Sprintf("%dm left", minutes)
}
